package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/trailtrack/licensed/internal/model"
	"github.com/trailtrack/licensed/internal/service"
	"github.com/trailtrack/licensed/internal/store"
)

func newTestServer(t *testing.T) *MCPServer {
	t.Helper()
	st, err := store.Open(store.Options{})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	licenses := service.NewLicenseService(st, logger)
	purchases := service.NewPurchaseService(st, licenses, nil, logger)
	return NewMCPServer(licenses, purchases, "test", logger)
}

func toolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func createLicense(t *testing.T, s *MCPServer, email string, seats int) model.License {
	t.Helper()
	res, err := s.handleCreateLicense(context.Background(), toolRequest("licensed_create_license", map[string]interface{}{
		"email":           email,
		"max_activations": float64(seats),
		"notes":           "created in test",
	}))
	if err != nil {
		t.Fatalf("handleCreateLicense: %v", err)
	}
	if res.IsError {
		t.Fatalf("create failed: %s", resultText(t, res))
	}
	var lic model.License
	if err := json.Unmarshal([]byte(resultText(t, res)), &lic); err != nil {
		t.Fatalf("decode license: %v", err)
	}
	return lic
}

func TestCreateAndGetLicense(t *testing.T) {
	s := newTestServer(t)
	lic := createLicense(t, s, "buyer@example.com", 2)

	if lic.MaxActivations != 2 || lic.Key == "" {
		t.Fatalf("unexpected license: %+v", lic)
	}

	res, err := s.handleGetLicense(context.Background(), toolRequest("licensed_get_license", map[string]interface{}{
		"license_key": lic.Key,
	}))
	if err != nil {
		t.Fatalf("handleGetLicense: %v", err)
	}
	var detail model.LicenseDetail
	if err := json.Unmarshal([]byte(resultText(t, res)), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Email != "buyer@example.com" || detail.Activations == nil {
		t.Errorf("unexpected detail: %+v", detail)
	}
}

func TestCreateLicense_BadInput(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing email", map[string]interface{}{}, "email"},
		{"invalid email", map[string]interface{}{"email": "nope"}, "valid email"},
		{"bad expiry", map[string]interface{}{"email": "a@example.com", "expires_at": "tomorrow"}, "RFC 3339"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleCreateLicense(ctx, toolRequest("licensed_create_license", tt.args))
			if err != nil {
				t.Fatalf("unexpected protocol error: %v", err)
			}
			if !res.IsError {
				t.Fatal("expected tool error")
			}
			if text := resultText(t, res); !strings.Contains(text, tt.want) {
				t.Errorf("error %q does not mention %q", text, tt.want)
			}
		})
	}
}

func TestGetLicense_Unknown(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleGetLicense(context.Background(), toolRequest("licensed_get_license", map[string]interface{}{
		"license_key": "00000000-0000-4000-8000-000000000000",
	}))
	if err != nil {
		t.Fatalf("unexpected protocol error: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "no license") {
		t.Errorf("expected not-found tool error, got %+v", res)
	}
}

func TestRevokeAndList(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	lic := createLicense(t, s, "buyer@example.com", 1)
	createLicense(t, s, "other@example.com", 1)

	res, err := s.handleRevoke(true)(ctx, toolRequest("licensed_revoke_license", map[string]interface{}{
		"license_key": lic.Key,
	}))
	if err != nil || res.IsError {
		t.Fatalf("revoke failed: %v %+v", err, res)
	}

	res, err = s.handleListLicenses(ctx, toolRequest("licensed_list_licenses", map[string]interface{}{
		"email": "buyer",
	}))
	if err != nil {
		t.Fatalf("handleListLicenses: %v", err)
	}
	var list []model.LicenseSummary
	if err := json.Unmarshal([]byte(resultText(t, res)), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || !list[0].IsRevoked {
		t.Fatalf("expected one revoked license, got %+v", list)
	}

	res, _ = s.handleRevoke(false)(ctx, toolRequest("licensed_unrevoke_license", map[string]interface{}{
		"license_key": lic.Key,
	}))
	if res.IsError {
		t.Fatalf("unrevoke failed: %s", resultText(t, res))
	}
}

func TestDeactivateMachine(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	lic := createLicense(t, s, "buyer@example.com", 1)

	if _, err := s.licenses.Activate(ctx, service.ActivateParams{
		LicenseKey: lic.Key,
		MachineID:  "machine-a",
		AppVersion: "1.0",
		Platform:   "linux",
	}); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	args := map[string]interface{}{"license_key": lic.Key, "machine_id": "machine-a"}
	res, err := s.handleDeactivateMachine(ctx, toolRequest("licensed_deactivate_machine", args))
	if err != nil || res.IsError {
		t.Fatalf("deactivate failed: %v %+v", err, res)
	}

	res, _ = s.handleDeactivateMachine(ctx, toolRequest("licensed_deactivate_machine", args))
	if !res.IsError || !strings.Contains(resultText(t, res), "NOT_ACTIVATED") {
		t.Errorf("second deactivation should report NOT_ACTIVATED, got %s", resultText(t, res))
	}
}

func TestListPurchases(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	if _, err := s.purchases.RecordPending(ctx, "cs_1", 1000, "usd"); err != nil {
		t.Fatalf("RecordPending: %v", err)
	}

	res, err := s.handleListPurchases(ctx, toolRequest("licensed_list_purchases", map[string]interface{}{
		"limit": float64(10),
	}))
	if err != nil {
		t.Fatalf("handleListPurchases: %v", err)
	}
	var list []model.Purchase
	if err := json.Unmarshal([]byte(resultText(t, res)), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].CheckoutSessionID != "cs_1" {
		t.Errorf("unexpected purchases: %+v", list)
	}
}

func TestLicenseResource(t *testing.T) {
	s := newTestServer(t)
	lic := createLicense(t, s, "buyer@example.com", 1)

	var req mcp.ReadResourceRequest
	req.Params.URI = "licensed://licenses/" + lic.Key
	contents, err := s.handleLicenseResource(context.Background(), req)
	if err != nil {
		t.Fatalf("handleLicenseResource: %v", err)
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected text contents, got %T", contents[0])
	}
	if !strings.Contains(text.Text, lic.Key) {
		t.Errorf("resource does not contain the license key: %s", text.Text)
	}

	req.Params.URI = "licensed://other"
	if _, err := s.handleLicenseResource(context.Background(), req); err == nil {
		t.Error("expected error for malformed URI")
	}

	req.Params.URI = "licensed://licenses"
	contents, err = s.handleLicensesResource(context.Background(), req)
	if err != nil {
		t.Fatalf("handleLicensesResource: %v", err)
	}
	if text := contents[0].(mcp.TextResourceContents).Text; !strings.Contains(text, lic.Key) {
		t.Errorf("recent licenses resource missing key")
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		val      int
		min      int
		max      int
		expected int
	}{
		{"value in range", 5, 1, 10, 5},
		{"value below min", -3, 1, 10, 1},
		{"value above max", 15, 1, 10, 10},
		{"value equals min", 1, 1, 10, 1},
		{"value equals max", 10, 1, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clamp(tt.val, tt.min, tt.max)
			if got != tt.expected {
				t.Errorf("clamp(%d, %d, %d) = %d, want %d", tt.val, tt.min, tt.max, got, tt.expected)
			}
		})
	}
}

func TestAnnotations(t *testing.T) {
	if ann := readOnlyAnnotation(); ann.ReadOnlyHint == nil || !*ann.ReadOnlyHint {
		t.Error("readOnlyAnnotation should set ReadOnlyHint=true")
	}
	if ann := mutatingAnnotation(); ann.ReadOnlyHint == nil || *ann.ReadOnlyHint {
		t.Error("mutatingAnnotation should set ReadOnlyHint=false")
	}
}
