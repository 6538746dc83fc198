// Package grpcsvc содержит gRPC-интерфейс терминала: черновики, сканирование,
// оформление продаж, история и сессия продавца.
package grpcsvc

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alebrije/pos/internal/domain"
	"github.com/alebrije/pos/internal/draft"
	"github.com/alebrije/pos/internal/qr"
	"github.com/alebrije/pos/internal/service/checkout"
	"github.com/alebrije/pos/internal/service/history"
	"github.com/alebrije/pos/internal/service/scan"
	"github.com/alebrije/pos/internal/service/session"
)

// DraftService реализует DraftServiceServer поверх хранилища черновиков и сервисов.
type DraftService struct {
	drafts   *draft.Store
	scanner  *scan.Service
	checkout *checkout.Service
	history  *history.Service
	session  *session.Session
	appID    string
	loc      *time.Location
	logger   *log.Entry
}

// Option настраивает DraftService.
type Option func(*DraftService)

// WithAppID задаёт ожидаемое поле app для ParseQR.
func WithAppID(appID string) Option {
	return func(s *DraftService) {
		s.appID = appID
	}
}

// WithLocation задаёт часовой пояс для фильтра истории по датам.
func WithLocation(loc *time.Location) Option {
	return func(s *DraftService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewDraftService конструирует сервис с зависимостями.
func NewDraftService(
	drafts *draft.Store,
	scanner *scan.Service,
	checkoutSvc *checkout.Service,
	historySvc *history.Service,
	sess *session.Session,
	logger *log.Entry,
	opts ...Option,
) *DraftService {
	if logger == nil {
		logger = log.New().WithField("component", "draft-service")
	}
	s := &DraftService{
		drafts:   drafts,
		scanner:  scanner,
		checkout: checkoutSvc,
		history:  historySvc,
		session:  sess,
		loc:      time.Local,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ DraftServiceServer = (*DraftService)(nil)

// CreateDraft открывает черновик. Без owner_id владельцем становится текущий продавец.
func (s *DraftService) CreateDraft(_ context.Context, req *CreateDraftRequest) (*DraftResponse, error) {
	owner := req.OwnerID
	if owner == nil {
		if id := s.userID(); id != 0 {
			owner = &id
		}
	}
	d, err := s.drafts.Create(owner)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DraftResponse{Draft: d}, nil
}

func (s *DraftService) GetDraft(_ context.Context, req *DraftRequest) (*DraftResponse, error) {
	if err := requireDraftID(req.DraftID); err != nil {
		return nil, err
	}
	return s.draftResponse(s.drafts.Get(req.DraftID))
}

// ListDrafts возвращает черновики в порядке создания и id активного.
func (s *DraftService) ListDrafts(context.Context, *Empty) (*ListDraftsResponse, error) {
	return s.listResponse(), nil
}

func (s *DraftService) AddItem(_ context.Context, req *AddItemRequest) (*DraftResponse, error) {
	if err := requireDraftID(req.DraftID); err != nil {
		return nil, err
	}
	return s.draftResponse(s.drafts.AddItem(req.DraftID, req.Item))
}

func (s *DraftService) UpdateItem(_ context.Context, req *UpdateItemRequest) (*DraftResponse, error) {
	if err := requireDraftID(req.DraftID); err != nil {
		return nil, err
	}
	return s.draftResponse(s.drafts.UpdateItem(req.DraftID, req.Index, req.Patch.toDomain()))
}

func (s *DraftService) RemoveItem(_ context.Context, req *RemoveItemRequest) (*DraftResponse, error) {
	if err := requireDraftID(req.DraftID); err != nil {
		return nil, err
	}
	return s.draftResponse(s.drafts.RemoveItem(req.DraftID, req.Index))
}

func (s *DraftService) ClearItems(_ context.Context, req *DraftRequest) (*DraftResponse, error) {
	if err := requireDraftID(req.DraftID); err != nil {
		return nil, err
	}
	return s.draftResponse(s.drafts.ClearItems(req.DraftID))
}

func (s *DraftService) SetStatus(_ context.Context, req *SetStatusRequest) (*DraftResponse, error) {
	if err := requireDraftID(req.DraftID); err != nil {
		return nil, err
	}
	return s.draftResponse(s.drafts.SetStatus(req.DraftID, domain.DraftStatus(req.Status)))
}

// SetActive переключает активный черновик; id не проверяется.
func (s *DraftService) SetActive(_ context.Context, req *SetActiveRequest) (*ListDraftsResponse, error) {
	var id *string
	if req.DraftID != "" {
		id = &req.DraftID
	}
	s.drafts.SetActive(id)
	return s.listResponse(), nil
}

func (s *DraftService) SetOwner(_ context.Context, req *SetOwnerRequest) (*DraftResponse, error) {
	if err := requireDraftID(req.DraftID); err != nil {
		return nil, err
	}
	return s.draftResponse(s.drafts.SetOwner(req.DraftID, req.OwnerID))
}

// SetDelivery задаёт способ получения. При самовывозе адрес снимается.
func (s *DraftService) SetDelivery(_ context.Context, req *SetDeliveryRequest) (*DraftResponse, error) {
	if err := requireDraftID(req.DraftID); err != nil {
		return nil, err
	}
	address := req.AddressID
	if req.PickupInStore {
		address = nil
	}
	if _, err := s.drafts.SetAddress(req.DraftID, address); err != nil {
		return nil, toStatus(err)
	}
	return s.draftResponse(s.drafts.SetPickupInStore(req.DraftID, req.PickupInStore))
}

func (s *DraftService) SetContact(_ context.Context, req *SetContactRequest) (*DraftResponse, error) {
	if err := requireDraftID(req.DraftID); err != nil {
		return nil, err
	}
	return s.draftResponse(s.drafts.SetContact(req.DraftID, req.Contact))
}

// DiscardDraft удаляет черновик и публикует событие об отмене.
func (s *DraftService) DiscardDraft(ctx context.Context, req *DraftRequest) (*Empty, error) {
	if err := requireDraftID(req.DraftID); err != nil {
		return nil, err
	}
	if err := s.checkout.Cancel(ctx, req.DraftID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *DraftService) DiscardAll(context.Context, *Empty) (*DiscardAllResponse, error) {
	n := s.drafts.DiscardAll()
	s.logger.WithField("discarded", n).Info("all drafts discarded")
	return &DiscardAllResponse{Discarded: n}, nil
}

// ParseQR только проверяет QR, не обращаясь к backend.
func (s *DraftService) ParseQR(_ context.Context, req *ParseQRRequest) (*ParseQRResponse, error) {
	payload, err := qr.Parse(req.Text, s.appID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ParseQRResponse{Payload: payload}, nil
}

func (s *DraftService) ScanAndAdd(ctx context.Context, req *ScanAndAddRequest) (*ScanAndAddResponse, error) {
	res, err := s.scanner.Scan(ctx, req.Text)
	if err != nil {
		return nil, toStatus(err)
	}

	add := scan.AddRequest{
		DraftID:    req.DraftID,
		Product:    res.Product,
		SizeLabel:  req.SizeLabel,
		ColorLabel: req.ColorLabel,
		Quantity:   req.Quantity,
	}
	if id := s.userID(); id != 0 {
		add.OwnerID = &id
	}

	var d domain.DraftSale
	if req.NewDraft {
		d, err = s.scanner.StartWithProduct(ctx, add)
	} else {
		d, err = s.scanner.AddToDraft(ctx, add)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &ScanAndAddResponse{Draft: d, Product: res.Product}, nil
}

func (s *DraftService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	if err := requireDraftID(req.DraftID); err != nil {
		return nil, err
	}
	receipt, err := s.checkout.Checkout(ctx, checkout.Request{
		DraftID: req.DraftID,
		UserID:  s.userID(),
		Method:  domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method))),
		Cash:    checkout.CashPayment{Received: checkout.ParseAmount(req.CashReceived)},
		Card: checkout.CardPayment{
			Holder: req.Card.Holder,
			Number: req.Card.Number,
			Expiry: req.Card.Expiry,
			CVV:    req.Card.CVV,
		},
		Transfer: checkout.TransferPayment{
			Bank:      req.Transfer.Bank,
			Reference: req.Transfer.Reference,
			Holder:    req.Transfer.Holder,
		},
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &CheckoutResponse{
		SaleID:      receipt.SaleID,
		OrderNumber: receipt.OrderNumber,
		Total:       receipt.Total,
		Change:      receipt.Change,
		Method:      string(receipt.Method),
	}, nil
}

func (s *DraftService) SalesHistory(ctx context.Context, req *SalesHistoryRequest) (*SalesHistoryResponse, error) {
	filter := history.Filter{Query: req.Query}
	if m := strings.ToLower(strings.TrimSpace(req.Method)); m != "" && m != "todos" {
		filter.Method = domain.PaymentMethod(m)
	}
	var err error
	if filter.From, err = history.ParseDay(req.From, s.loc); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if filter.To, err = history.ParseDay(req.To, s.loc); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	page, err := s.history.List(ctx, s.userID(), filter, req.Page)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &SalesHistoryResponse{
		Sales:   make([]SaleSummary, 0, len(page.Sales)),
		Matched: page.Matched,
		HasMore: page.HasMore,
	}
	for _, sale := range page.Sales {
		out.Sales = append(out.Sales, toSaleSummary(sale))
	}
	return out, nil
}

func (s *DraftService) SaleDetail(ctx context.Context, req *SaleDetailRequest) (*SaleDetailResponse, error) {
	if req.SaleID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "sale_id is required")
	}
	detail, err := s.history.Detail(ctx, req.SaleID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toSaleDetail(detail), nil
}

func (s *DraftService) Login(ctx context.Context, req *LoginRequest) (*SessionResponse, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "email and password are required")
	}
	res, err := s.session.Login(ctx, domain.Credentials{Email: strings.TrimSpace(req.Email), Password: req.Password})
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	return &SessionResponse{User: toUser(res.User), Message: res.Message}, nil
}

func (s *DraftService) CheckAuth(ctx context.Context, _ *Empty) (*SessionResponse, error) {
	res, err := s.session.CheckAuth(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "session is not valid")
	}
	return &SessionResponse{User: toUser(res.User), Message: res.Message}, nil
}

func (s *DraftService) Logout(ctx context.Context, _ *Empty) (*Empty, error) {
	s.session.Logout(ctx)
	return &Empty{}, nil
}

func (s *DraftService) userID() int64 {
	if s.session == nil {
		return 0
	}
	return s.session.UserID()
}

func (s *DraftService) draftResponse(d domain.DraftSale, err error) (*DraftResponse, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return &DraftResponse{Draft: d}, nil
}

func (s *DraftService) listResponse() *ListDraftsResponse {
	return &ListDraftsResponse{
		Drafts:    s.drafts.List(),
		ActiveID:  s.drafts.ActiveID(),
		MaxDrafts: s.drafts.MaxDrafts(),
	}
}

func requireDraftID(id string) error {
	if strings.TrimSpace(id) == "" {
		return status.Error(codes.InvalidArgument, "draft_id is required")
	}
	return nil
}
