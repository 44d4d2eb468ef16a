package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/trailtrack/licensed/internal/service"
	"github.com/trailtrack/licensed/internal/store"
)

// registerTools registers all license administration tools on the server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Lookup tools -----

	srv.AddTool(
		mcp.NewTool("licensed_list_licenses",
			mcp.WithDescription(
				"List licenses newest first. Each entry includes the license key, email, "+
					"revocation state, expiry, and active_activations out of max_activations. "+
					"Use the email filter to find a customer's licenses.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("email",
				mcp.Description("Substring to match against the license email"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of licenses to return (default 25, max 500)"),
			),
			mcp.WithNumber("offset",
				mcp.Description("Number of licenses to skip for pagination"),
			),
		),
		s.handleListLicenses,
	)

	srv.AddTool(
		mcp.NewTool("licensed_get_license",
			mcp.WithDescription(
				"Show one license with every machine activation recorded against it, "+
					"active or not.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("license_key",
				mcp.Required(),
				mcp.Description("License key (UUID)"),
			),
		),
		s.handleGetLicense,
	)

	srv.AddTool(
		mcp.NewTool("licensed_list_purchases",
			mcp.WithDescription(
				"List checkout purchases newest first, with their status and the id of "+
					"the license issued for them, if any.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of purchases to return (default 25, max 500)"),
			),
			mcp.WithNumber("offset",
				mcp.Description("Number of purchases to skip for pagination"),
			),
		),
		s.handleListPurchases,
	)

	// ----- Mutation tools -----

	srv.AddTool(
		mcp.NewTool("licensed_create_license",
			mcp.WithDescription(
				"Issue a new license. Returns the license including its generated key, "+
					"which should be sent to the customer.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("email",
				mcp.Required(),
				mcp.Description("Customer email"),
			),
			mcp.WithNumber("max_activations",
				mcp.Description("Number of machines that may be active at once (default from configuration)"),
			),
			mcp.WithString("expires_at",
				mcp.Description("Optional RFC 3339 expiry timestamp; omit for a perpetual license"),
			),
			mcp.WithString("notes",
				mcp.Description("Internal notes, never shown to the customer"),
			),
		),
		s.handleCreateLicense,
	)

	srv.AddTool(
		mcp.NewTool("licensed_revoke_license",
			mcp.WithDescription(
				"Revoke a license. Activation and validation fail from then on; "+
					"existing activation rows are kept.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("license_key",
				mcp.Required(),
				mcp.Description("License key (UUID)"),
			),
		),
		s.handleRevoke(true),
	)

	srv.AddTool(
		mcp.NewTool("licensed_unrevoke_license",
			mcp.WithDescription("Reinstate a revoked license."),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("license_key",
				mcp.Required(),
				mcp.Description("License key (UUID)"),
			),
		),
		s.handleRevoke(false),
	)

	srv.AddTool(
		mcp.NewTool("licensed_deactivate_machine",
			mcp.WithDescription(
				"Free the seat held by one machine, for example when a customer has lost "+
					"access to an old computer.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("license_key",
				mcp.Required(),
				mcp.Description("License key (UUID)"),
			),
			mcp.WithString("machine_id",
				mcp.Required(),
				mcp.Description("Machine id as reported by the application"),
			),
		),
		s.handleDeactivateMachine,
	)
}

// --------------------------------------------------------------------------
// Tool handlers
// --------------------------------------------------------------------------

func (s *MCPServer) handleListLicenses(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	f := store.LicenseFilter{
		Email:  optionalString(request, "email"),
		Limit:  clamp(optionalInt(request, "limit", 25), 1, 500),
		Offset: max(optionalInt(request, "offset", 0), 0),
	}

	licenses, err := s.licenses.ListLicenses(ctx, f)
	if err != nil {
		return serviceError("list licenses", err)
	}
	return successJSON(licenses)
}

func (s *MCPServer) handleGetLicense(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	key, err := requireString(request, "license_key")
	if err != nil {
		return toolError("%v", err)
	}

	detail, err := s.licenses.GetLicense(ctx, key)
	if err != nil {
		return serviceError("get license", err)
	}
	return successJSON(detail)
}

func (s *MCPServer) handleListPurchases(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	limit := clamp(optionalInt(request, "limit", 25), 1, 500)
	offset := max(optionalInt(request, "offset", 0), 0)

	purchases, err := s.purchases.ListPurchases(ctx, limit, offset)
	if err != nil {
		return serviceError("list purchases", err)
	}
	return successJSON(purchases)
}

func (s *MCPServer) handleCreateLicense(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	email, err := requireString(request, "email")
	if err != nil {
		return toolError("%v", err)
	}
	expiresAt, err := optionalTime(request, "expires_at")
	if err != nil {
		return toolError("%v", err)
	}

	lic, err := s.licenses.CreateLicense(ctx, service.CreateLicenseParams{
		Email:          email,
		MaxActivations: optionalInt(request, "max_activations", 0),
		ExpiresAt:      expiresAt,
		Notes:          optionalString(request, "notes"),
	})
	if err != nil {
		return serviceError("create license", err)
	}
	s.logger.Info("license created via MCP", "license_key", lic.Key)
	return successJSON(lic)
}

func (s *MCPServer) handleRevoke(revoked bool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := requireString(request, "license_key")
		if err != nil {
			return toolError("%v", err)
		}
		if err := s.licenses.SetRevoked(ctx, key, revoked); err != nil {
			return serviceError("update license", err)
		}
		return successJSON(map[string]interface{}{
			"license_key": key,
			"is_revoked":  revoked,
		})
	}
}

func (s *MCPServer) handleDeactivateMachine(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	key, err := requireString(request, "license_key")
	if err != nil {
		return toolError("%v", err)
	}
	machineID, err := requireString(request, "machine_id")
	if err != nil {
		return toolError("%v", err)
	}

	if err := s.licenses.ForceDeactivate(ctx, key, machineID); err != nil {
		return serviceError("deactivate machine", err)
	}
	return successJSON(map[string]interface{}{
		"license_key": key,
		"machine_id":  machineID,
		"deactivated": true,
	})
}
