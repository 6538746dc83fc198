package grpcsvc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName: полное имя gRPC-сервиса черновиков.
const ServiceName = "pos.v1.DraftService"

// Имена RPC.
const (
	MethodCreateDraft  = "CreateDraft"
	MethodGetDraft     = "GetDraft"
	MethodListDrafts   = "ListDrafts"
	MethodAddItem      = "AddItem"
	MethodUpdateItem   = "UpdateItem"
	MethodRemoveItem   = "RemoveItem"
	MethodClearItems   = "ClearItems"
	MethodSetStatus    = "SetStatus"
	MethodSetActive    = "SetActive"
	MethodSetOwner     = "SetOwner"
	MethodSetDelivery  = "SetDelivery"
	MethodSetContact   = "SetContact"
	MethodDiscardDraft = "DiscardDraft"
	MethodDiscardAll   = "DiscardAll"
	MethodParseQR      = "ParseQR"
	MethodScanAndAdd   = "ScanAndAdd"
	MethodCheckout     = "Checkout"
	MethodSalesHistory = "SalesHistory"
	MethodSaleDetail   = "SaleDetail"
	MethodLogin        = "Login"
	MethodCheckAuth    = "CheckAuth"
	MethodLogout       = "Logout"
)

// DraftServiceServer: серверная сторона pos.v1.DraftService.
type DraftServiceServer interface {
	CreateDraft(context.Context, *CreateDraftRequest) (*DraftResponse, error)
	GetDraft(context.Context, *DraftRequest) (*DraftResponse, error)
	ListDrafts(context.Context, *Empty) (*ListDraftsResponse, error)
	AddItem(context.Context, *AddItemRequest) (*DraftResponse, error)
	UpdateItem(context.Context, *UpdateItemRequest) (*DraftResponse, error)
	RemoveItem(context.Context, *RemoveItemRequest) (*DraftResponse, error)
	ClearItems(context.Context, *DraftRequest) (*DraftResponse, error)
	SetStatus(context.Context, *SetStatusRequest) (*DraftResponse, error)
	SetActive(context.Context, *SetActiveRequest) (*ListDraftsResponse, error)
	SetOwner(context.Context, *SetOwnerRequest) (*DraftResponse, error)
	SetDelivery(context.Context, *SetDeliveryRequest) (*DraftResponse, error)
	SetContact(context.Context, *SetContactRequest) (*DraftResponse, error)
	DiscardDraft(context.Context, *DraftRequest) (*Empty, error)
	DiscardAll(context.Context, *Empty) (*DiscardAllResponse, error)
	ParseQR(context.Context, *ParseQRRequest) (*ParseQRResponse, error)
	ScanAndAdd(context.Context, *ScanAndAddRequest) (*ScanAndAddResponse, error)
	Checkout(context.Context, *CheckoutRequest) (*CheckoutResponse, error)
	SalesHistory(context.Context, *SalesHistoryRequest) (*SalesHistoryResponse, error)
	SaleDetail(context.Context, *SaleDetailRequest) (*SaleDetailResponse, error)
	Login(context.Context, *LoginRequest) (*SessionResponse, error)
	CheckAuth(context.Context, *Empty) (*SessionResponse, error)
	Logout(context.Context, *Empty) (*Empty, error)
}

// ServiceDesc описывает pos.v1.DraftService. Сообщения передаются как
// google.protobuf.Struct, поля которых совпадают с JSON-тегами Go-структур.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DraftServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodCreateDraft, Handler: unary(MethodCreateDraft, DraftServiceServer.CreateDraft)},
		{MethodName: MethodGetDraft, Handler: unary(MethodGetDraft, DraftServiceServer.GetDraft)},
		{MethodName: MethodListDrafts, Handler: unary(MethodListDrafts, DraftServiceServer.ListDrafts)},
		{MethodName: MethodAddItem, Handler: unary(MethodAddItem, DraftServiceServer.AddItem)},
		{MethodName: MethodUpdateItem, Handler: unary(MethodUpdateItem, DraftServiceServer.UpdateItem)},
		{MethodName: MethodRemoveItem, Handler: unary(MethodRemoveItem, DraftServiceServer.RemoveItem)},
		{MethodName: MethodClearItems, Handler: unary(MethodClearItems, DraftServiceServer.ClearItems)},
		{MethodName: MethodSetStatus, Handler: unary(MethodSetStatus, DraftServiceServer.SetStatus)},
		{MethodName: MethodSetActive, Handler: unary(MethodSetActive, DraftServiceServer.SetActive)},
		{MethodName: MethodSetOwner, Handler: unary(MethodSetOwner, DraftServiceServer.SetOwner)},
		{MethodName: MethodSetDelivery, Handler: unary(MethodSetDelivery, DraftServiceServer.SetDelivery)},
		{MethodName: MethodSetContact, Handler: unary(MethodSetContact, DraftServiceServer.SetContact)},
		{MethodName: MethodDiscardDraft, Handler: unary(MethodDiscardDraft, DraftServiceServer.DiscardDraft)},
		{MethodName: MethodDiscardAll, Handler: unary(MethodDiscardAll, DraftServiceServer.DiscardAll)},
		{MethodName: MethodParseQR, Handler: unary(MethodParseQR, DraftServiceServer.ParseQR)},
		{MethodName: MethodScanAndAdd, Handler: unary(MethodScanAndAdd, DraftServiceServer.ScanAndAdd)},
		{MethodName: MethodCheckout, Handler: unary(MethodCheckout, DraftServiceServer.Checkout)},
		{MethodName: MethodSalesHistory, Handler: unary(MethodSalesHistory, DraftServiceServer.SalesHistory)},
		{MethodName: MethodSaleDetail, Handler: unary(MethodSaleDetail, DraftServiceServer.SaleDetail)},
		{MethodName: MethodLogin, Handler: unary(MethodLogin, DraftServiceServer.Login)},
		{MethodName: MethodCheckAuth, Handler: unary(MethodCheckAuth, DraftServiceServer.CheckAuth)},
		{MethodName: MethodLogout, Handler: unary(MethodLogout, DraftServiceServer.Logout)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pos/v1/draft_service.proto",
}

// RegisterDraftServiceServer регистрирует сервис на gRPC-сервере.
func RegisterDraftServiceServer(s grpc.ServiceRegistrar, srv DraftServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](method string, call func(DraftServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		invoke := func(ctx context.Context, raw any) (any, error) {
			req := new(Req)
			if err := fromStruct(raw.(*structpb.Struct), req); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "decode %s request: %v", method, err)
			}
			resp, err := call(srv.(DraftServiceServer), ctx, req)
			if err != nil {
				return nil, err
			}
			out, err := toStruct(resp)
			if err != nil {
				return nil, status.Errorf(codes.Internal, "encode %s response: %v", method, err)
			}
			return out, nil
		}

		if interceptor == nil {
			return invoke(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, invoke)
	}
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		return nil
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Client: клиент pos.v1.DraftService поверх произвольного соединения.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient создаёт клиента.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call вызывает RPC method: req кодируется в Struct, ответ декодируется в resp.
func (c *Client) Call(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	if req == nil {
		req = Empty{}
	}
	in, err := toStruct(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	if err := fromStruct(out, resp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
