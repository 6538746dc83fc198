package qr_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alebrije/pos/internal/qr"
)

func TestParseAt(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	nowMs := now.UnixMilli()

	cases := []struct {
		name        string
		text        string
		expectedApp string
		wantErr     error
	}{
		{"minimal", `{"productId":"1","store":"A"}`, "", nil},
		{"numeric product id", `{"productId":12345,"store":"001"}`, "", nil},
		{"broken json", `{bad`, "", qr.ErrMalformed},
		{"plain text", `not-json-at-all`, "", qr.ErrMalformed},
		{"array", `[1,2]`, "", qr.ErrMalformed},
		{"store wrong type", `{"productId":"1","store":7}`, "", qr.ErrMalformed},
		{"used wrong type", `{"productId":"1","store":"A","used":"yes"}`, "", qr.ErrMalformed},
		{"missing product", `{"store":"A"}`, "", qr.ErrIncomplete},
		{"missing store", `{"productId":"1"}`, "", qr.ErrIncomplete},
		{"empty product", `{"productId":"","store":"A"}`, "", qr.ErrIncomplete},
		{"null store", `{"productId":"1","store":null}`, "", qr.ErrIncomplete},
		{"expired", fmt.Sprintf(`{"productId":"1","store":"A","exp":%d}`, nowMs-1), "", qr.ErrExpired},
		{"expires exactly now", fmt.Sprintf(`{"productId":"1","store":"A","exp":%d}`, nowMs), "", nil},
		{"future expiry", fmt.Sprintf(`{"productId":"1","store":"A","exp":%d}`, nowMs+60_000), "", nil},
		{"zero expiry ignored", `{"productId":"1","store":"A","exp":0}`, "", nil},
		{"expiry beyond int64 is far future", `{"productId":"1","store":"A","exp":1e19}`, "", nil},
		{"expiry below int64 is past", `{"productId":"1","store":"A","exp":-1e19}`, "", qr.ErrExpired},
		{"used", `{"productId":"1","store":"A","used":true}`, "", qr.ErrAlreadyUsed},
		{"not used", `{"productId":"1","store":"A","used":false}`, "", nil},
		{"wrong app", `{"productId":"1","store":"A","app":"other"}`, "expected", qr.ErrWrongApp},
		{"wrong app without expectation", `{"productId":"1","store":"A","app":"other"}`, "", nil},
		{"matching app", `{"productId":"1","store":"A","app":"expected"}`, "expected", nil},
		{"no app in payload", `{"productId":"1","store":"A"}`, "expected", nil},
		{"incomplete wins over expired", fmt.Sprintf(`{"store":"A","exp":%d}`, nowMs-1), "", qr.ErrIncomplete},
		{"expired wins over used", fmt.Sprintf(`{"productId":"1","store":"A","exp":%d,"used":true}`, nowMs-1), "", qr.ErrExpired},
		{"used wins over wrong app", `{"productId":"1","store":"A","used":true,"app":"x"}`, "y", qr.ErrAlreadyUsed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := qr.ParseAt(tc.text, tc.expectedApp, now)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestParse_OptionalFieldsStayAbsent(t *testing.T) {
	p, err := qr.Parse(`{"productId":"1","store":"A"}`, "")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.ProductID != "1" || p.Store != "A" {
		t.Fatalf("unexpected payload %+v", p)
	}
	if p.Exp != nil || p.Used != nil || p.App != nil {
		t.Fatalf("expected optional fields nil, got exp=%v used=%v app=%v", p.Exp, p.Used, p.App)
	}
	if _, ok := p.ExpiresAt(); ok {
		t.Fatalf("expected no expiry")
	}
}

func TestParse_KeepsRecognizedFields(t *testing.T) {
	exp := time.Now().Add(time.Hour).UnixMilli()
	p, err := qr.Parse(fmt.Sprintf(`{"productId":"9","store":"001","exp":%d,"used":false,"app":"alebrije-app","extra":1}`, exp), "alebrije-app")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.Exp == nil || *p.Exp != exp {
		t.Fatalf("expected exp %d, got %v", exp, p.Exp)
	}
	if p.Used == nil || *p.Used {
		t.Fatalf("expected used=false, got %v", p.Used)
	}
	if p.App == nil || *p.App != "alebrije-app" {
		t.Fatalf("expected app, got %v", p.App)
	}
}

func TestKind(t *testing.T) {
	_, err := qr.Parse(`{bad`, "")
	if got := qr.Kind(err); got != "QR_JSON_MALFORMED" {
		t.Fatalf("expected QR_JSON_MALFORMED, got %q", got)
	}
	if got := qr.Kind(fmt.Errorf("scan: %w", qr.ErrWrongApp)); got != "QR_WRONG_APP" {
		t.Fatalf("expected wrapped kind, got %q", got)
	}
	if qr.IsQRError(errors.New("boom")) {
		t.Fatalf("unrelated error must not be a QR error")
	}
}
