package grpcsvc_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/alebrije/pos/internal/domain"
	"github.com/alebrije/pos/internal/draft"
	"github.com/alebrije/pos/internal/service/checkout"
	grpcsvc "github.com/alebrije/pos/internal/service/grpc"
	"github.com/alebrije/pos/internal/service/history"
	"github.com/alebrije/pos/internal/service/scan"
	"github.com/alebrije/pos/internal/service/session"
	"github.com/alebrije/pos/internal/storage/memory"
)

const bufSize = 1024 * 1024

type stubCatalog struct{}

func (stubCatalog) ProductByQR(_ context.Context, code string) (domain.Product, error) {
	if code != "12345" {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, code)
	}
	return domain.Product{
		ID:    12345,
		Price: decimal.RequireFromString("120.50"),
		Type:  domain.NamedRef{Name: "Playera"},
		Brand: domain.NamedRef{Name: "MarcaX"},
		Variants: []domain.Variant{
			{ID: 1, Stock: 3, Size: domain.Size{ID: 10, Label: "M"}, Color: domain.Color{ID: 20, Label: "Rojo"}},
		},
	}, nil
}

type stubSales struct {
	saleID int64
	sales  []domain.SaleSummary
}

func (s *stubSales) CreateSale(context.Context, domain.SaleRequest) (int64, error) {
	return s.saleID, nil
}

func (s *stubSales) SalesByUser(context.Context, int64) ([]domain.SaleSummary, error) {
	return s.sales, nil
}

func (s *stubSales) SaleByID(_ context.Context, id int64) (domain.SaleDetail, error) {
	if id != 98 {
		return domain.SaleDetail{}, domain.ErrKeyNotFound
	}
	return domain.SaleDetail{
		ID:    98,
		Total: decimal.RequireFromString("241"),
		State: "Completada",
		Items: []domain.SaleDetailItem{{ID: 1, Quantity: 2, ProductID: 12345, SizeLabel: "M"}},
	}, nil
}

type stubAuth struct{}

func (stubAuth) Login(_ context.Context, creds domain.Credentials) (domain.LoginResult, error) {
	if creds.Password != "secret" {
		return domain.LoginResult{}, errors.New("bad credentials")
	}
	return domain.LoginResult{Token: "tok", User: &domain.User{ID: 7, Name: "Ana", Email: creds.Email}}, nil
}

func (stubAuth) CheckAuth(context.Context) (domain.LoginResult, error) {
	return domain.LoginResult{}, errors.New("no session")
}

func (stubAuth) Logout(context.Context) error { return nil }

func (stubAuth) SetToken(string) {}

type testEnv struct {
	client *grpcsvc.Client
	drafts *draft.Store
	outbox *memory.OutboxRepository
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	logger := loggerForTests()
	kv := memory.NewKeyValueStore()
	outbox := memory.NewOutboxRepository()
	drafts := draft.NewStore(draft.WithMaxDrafts(2))
	sales := &stubSales{
		saleID: 98,
		sales: []domain.SaleSummary{
			{ID: 98, OrderNumber: "ORD-1", PaymentMethod: domain.PaymentMethodCash, State: "Completada", SoldAt: time.Now()},
			{ID: 97, OrderNumber: "ORD-0", PaymentMethod: domain.PaymentMethodCard},
		},
	}

	service := grpcsvc.NewDraftService(
		drafts,
		scan.New(stubCatalog{}, drafts, scan.WithAppID("alebrije-app")),
		checkout.New(sales, drafts, kv, checkout.WithOutbox(outbox)),
		history.New(sales, kv),
		session.New(stubAuth{}, kv),
		logger,
		grpcsvc.WithAppID("alebrije-app"),
	)

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	grpcsvc.RegisterDraftServiceServer(server, service)
	go func() {
		if err := server.Serve(listener); err != nil {
			logger.WithError(err).Error("grpc serve failed")
		}
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}
	//nolint:staticcheck // grpc.Dial is required for bufconn testing
	conn, err := grpc.Dial("bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})

	return &testEnv{client: grpcsvc.NewClient(conn), drafts: drafts, outbox: outbox}
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: false, DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

func requireCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok, "expected grpc status, got %v", err)
	require.Equal(t, code, st.Code(), st.Message())
}

func TestDraftLifecycle(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	var created grpcsvc.DraftResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodCreateDraft, grpcsvc.CreateDraftRequest{}, &created))
	id := created.Draft.ID
	require.NotEmpty(t, id)
	require.Equal(t, domain.DraftStatusInProgress, created.Draft.Status)

	price := decimal.RequireFromString("10.10")
	var added grpcsvc.DraftResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodAddItem, grpcsvc.AddItemRequest{
		DraftID: id,
		Item:    domain.LineItem{ProductID: 1, SizeID: 2, ColorID: 3, Quantity: 3, UnitPrice: &price},
	}, &added))
	require.True(t, added.Draft.Total.Equal(decimal.RequireFromString("30.30")))

	qty := int32(1)
	var updated grpcsvc.DraftResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodUpdateItem, grpcsvc.UpdateItemRequest{
		DraftID: id, Index: 0, Patch: grpcsvc.ItemPatch{Quantity: &qty},
	}, &updated))
	require.True(t, updated.Draft.Total.Equal(decimal.RequireFromString("10.10")))

	err := env.client.Call(ctx, grpcsvc.MethodRemoveItem, grpcsvc.RemoveItemRequest{DraftID: id, Index: 5}, nil)
	requireCode(t, err, codes.InvalidArgument)

	var cleared grpcsvc.DraftResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodClearItems, grpcsvc.DraftRequest{DraftID: id}, &cleared))
	require.Empty(t, cleared.Draft.Items)
	require.True(t, cleared.Draft.Total.IsZero())

	err = env.client.Call(ctx, grpcsvc.MethodSetStatus, grpcsvc.SetStatusRequest{DraftID: id, Status: "paused"}, nil)
	requireCode(t, err, codes.InvalidArgument)

	var list grpcsvc.ListDraftsResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodSetActive, grpcsvc.SetActiveRequest{}, &list))
	require.Nil(t, list.ActiveID)
	require.Len(t, list.Drafts, 1)
	require.Equal(t, 2, list.MaxDrafts)

	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodDiscardDraft, grpcsvc.DraftRequest{DraftID: id}, nil))
	require.Zero(t, env.drafts.Count())
	require.Len(t, env.outbox.AllPending(), 1)

	err = env.client.Call(ctx, grpcsvc.MethodGetDraft, grpcsvc.DraftRequest{DraftID: id}, nil)
	requireCode(t, err, codes.NotFound)
}

func TestCreateDraft_LimitAndDiscardAll(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	for range 2 {
		require.NoError(t, env.client.Call(ctx, grpcsvc.MethodCreateDraft, grpcsvc.CreateDraftRequest{}, nil))
	}
	err := env.client.Call(ctx, grpcsvc.MethodCreateDraft, grpcsvc.CreateDraftRequest{}, nil)
	requireCode(t, err, codes.ResourceExhausted)

	var discarded grpcsvc.DiscardAllResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodDiscardAll, nil, &discarded))
	require.Equal(t, 2, discarded.Discarded)
}

func TestParseQR(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	var parsed grpcsvc.ParseQRResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodParseQR, grpcsvc.ParseQRRequest{Text: `{"productId":12345,"store":"001"}`}, &parsed))
	require.Equal(t, "12345", parsed.Payload.ProductID)

	err := env.client.Call(ctx, grpcsvc.MethodParseQR, grpcsvc.ParseQRRequest{Text: `{"productId":"1","store":"001","used":true}`}, nil)
	requireCode(t, err, codes.FailedPrecondition)
	st, _ := status.FromError(err)
	require.Equal(t, "QR_ALREADY_USED", st.Message())
}

func TestScanAndCheckout(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	var login grpcsvc.SessionResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodLogin, grpcsvc.LoginRequest{Email: "ana@alebrije.mx", Password: "secret"}, &login))
	require.Equal(t, int64(7), login.User.ID)

	var scanned grpcsvc.ScanAndAddResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodScanAndAdd, grpcsvc.ScanAndAddRequest{
		Text: `{"productId":"12345","store":"001"}`, Quantity: 2,
	}, &scanned))
	require.Equal(t, int64(12345), scanned.Product.ID)
	require.Len(t, scanned.Draft.Items, 1)
	require.NotNil(t, scanned.Draft.OwnerID)
	require.Equal(t, int64(7), *scanned.Draft.OwnerID)

	err := env.client.Call(ctx, grpcsvc.MethodScanAndAdd, grpcsvc.ScanAndAddRequest{
		Text: `{"productId":"12345","store":"001"}`, Quantity: 2,
	}, nil)
	requireCode(t, err, codes.InvalidArgument)

	err = env.client.Call(ctx, grpcsvc.MethodScanAndAdd, grpcsvc.ScanAndAddRequest{Text: `{"productId":"999","store":"001"}`, Quantity: 1}, nil)
	requireCode(t, err, codes.NotFound)

	err = env.client.Call(ctx, grpcsvc.MethodCheckout, grpcsvc.CheckoutRequest{
		DraftID: scanned.Draft.ID, Method: "efectivo", CashReceived: "100",
	}, nil)
	requireCode(t, err, codes.InvalidArgument)

	var receipt grpcsvc.CheckoutResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodCheckout, grpcsvc.CheckoutRequest{
		DraftID: scanned.Draft.ID, Method: "Efectivo", CashReceived: "300,00",
	}, &receipt))
	require.Equal(t, int64(98), receipt.SaleID)
	require.True(t, receipt.Change.Equal(decimal.RequireFromString("59")))
	require.Zero(t, env.drafts.Count())
}

func TestSalesHistoryAndDetail(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	err := env.client.Call(ctx, grpcsvc.MethodSalesHistory, grpcsvc.SalesHistoryRequest{}, nil)
	requireCode(t, err, codes.Unauthenticated)

	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodLogin, grpcsvc.LoginRequest{Email: "ana@alebrije.mx", Password: "secret"}, nil))

	var page grpcsvc.SalesHistoryResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodSalesHistory, grpcsvc.SalesHistoryRequest{Method: "todos"}, &page))
	require.Len(t, page.Sales, 2)
	require.Equal(t, int64(98), page.Sales[0].ID)
	require.True(t, page.Sales[0].Completed)

	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodSalesHistory, grpcsvc.SalesHistoryRequest{Method: "tarjeta"}, &page))
	require.Len(t, page.Sales, 1)

	err = env.client.Call(ctx, grpcsvc.MethodSalesHistory, grpcsvc.SalesHistoryRequest{From: "18/10/2026"}, nil)
	requireCode(t, err, codes.InvalidArgument)

	var detail grpcsvc.SaleDetailResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodSaleDetail, grpcsvc.SaleDetailRequest{SaleID: 98}, &detail))
	require.Equal(t, "Completada", detail.State)
	require.Len(t, detail.Items, 1)

	err = env.client.Call(ctx, grpcsvc.MethodSaleDetail, grpcsvc.SaleDetailRequest{}, nil)
	requireCode(t, err, codes.InvalidArgument)
}

func TestSessionRPCs(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	err := env.client.Call(ctx, grpcsvc.MethodLogin, grpcsvc.LoginRequest{Email: "ana@alebrije.mx", Password: "nope"}, nil)
	requireCode(t, err, codes.Unauthenticated)

	err = env.client.Call(ctx, grpcsvc.MethodLogin, grpcsvc.LoginRequest{}, nil)
	requireCode(t, err, codes.InvalidArgument)

	err = env.client.Call(ctx, grpcsvc.MethodCheckAuth, nil, nil)
	requireCode(t, err, codes.Unauthenticated)

	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodLogout, nil, nil))
}

func TestItemQuantityMustBePositive(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	var created grpcsvc.DraftResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodCreateDraft, grpcsvc.CreateDraftRequest{}, &created))
	id := created.Draft.ID
	price := decimal.NewFromInt(10)

	err := env.client.Call(ctx, grpcsvc.MethodAddItem, grpcsvc.AddItemRequest{
		DraftID: id, Item: domain.LineItem{ProductID: 1, Quantity: 0, UnitPrice: &price},
	}, nil)
	requireCode(t, err, codes.InvalidArgument)

	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodAddItem, grpcsvc.AddItemRequest{
		DraftID: id, Item: domain.LineItem{ProductID: 1, Quantity: 2, UnitPrice: &price},
	}, nil))
	negative := int32(-1)
	err = env.client.Call(ctx, grpcsvc.MethodUpdateItem, grpcsvc.UpdateItemRequest{
		DraftID: id, Index: 0, Patch: grpcsvc.ItemPatch{Quantity: &negative},
	}, nil)
	requireCode(t, err, codes.InvalidArgument)

	got, err := env.drafts.Get(id)
	require.NoError(t, err)
	require.Equal(t, int32(2), got.Items[0].Quantity)
}

func TestDraftCustomerSetters(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	var created grpcsvc.DraftResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodCreateDraft, grpcsvc.CreateDraftRequest{}, &created))
	id := created.Draft.ID

	owner := int64(7)
	var resp grpcsvc.DraftResponse
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodSetOwner, grpcsvc.SetOwnerRequest{DraftID: id, OwnerID: &owner}, &resp))
	require.Equal(t, int64(7), *resp.Draft.OwnerID)

	address := int64(15)
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodSetDelivery, grpcsvc.SetDeliveryRequest{DraftID: id, AddressID: &address}, &resp))
	require.False(t, resp.Draft.PickupInStore)
	require.Equal(t, int64(15), *resp.Draft.AddressID)

	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodSetDelivery, grpcsvc.SetDeliveryRequest{DraftID: id, PickupInStore: true, AddressID: &address}, &resp))
	require.True(t, resp.Draft.PickupInStore)
	require.Nil(t, resp.Draft.AddressID)

	badAddress := int64(-3)
	err := env.client.Call(ctx, grpcsvc.MethodSetDelivery, grpcsvc.SetDeliveryRequest{DraftID: id, AddressID: &badAddress}, nil)
	requireCode(t, err, codes.InvalidArgument)

	contact := &domain.Contact{Name: "Ana López", Phone: "55 1234 5678", Email: "ana@tienda.mx"}
	require.NoError(t, env.client.Call(ctx, grpcsvc.MethodSetContact, grpcsvc.SetContactRequest{DraftID: id, Contact: contact}, &resp))
	require.Equal(t, "Ana López", resp.Draft.Contact.Name)

	err = env.client.Call(ctx, grpcsvc.MethodSetContact, grpcsvc.SetContactRequest{DraftID: id, Contact: &domain.Contact{Name: "Al"}}, nil)
	requireCode(t, err, codes.InvalidArgument)
	err = env.client.Call(ctx, grpcsvc.MethodSetContact, grpcsvc.SetContactRequest{DraftID: id, Contact: &domain.Contact{Email: "ana@"}}, nil)
	requireCode(t, err, codes.InvalidArgument)

	got, err := env.drafts.Get(id)
	require.NoError(t, err)
	require.Equal(t, "ana@tienda.mx", got.Contact.Email)
}
