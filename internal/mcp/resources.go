package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/trailtrack/licensed/internal/store"
)

const (
	licensesURI       = "licensed://licenses"
	licenseURIPrefix  = licensesURI + "/"
	recentLicensesCap = 100
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// licensed://licenses: the most recent licenses with seat usage
	srv.AddResource(
		mcp.NewResource(
			licensesURI,
			"Recent Licenses",
			mcp.WithResourceDescription(
				"The most recently issued licenses with their active seat counts.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleLicensesResource,
	)

	// licensed://licenses/{key}: one license with its activations (template)
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			licensesURI+"/{key}",
			"License",
			mcp.WithTemplateDescription(
				"One license with every machine activation recorded against it.",
			),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleLicenseResource,
	)
}

func (s *MCPServer) handleLicensesResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	licenses, err := s.licenses.ListLicenses(ctx, store.LicenseFilter{Limit: recentLicensesCap})
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	return jsonContents(licensesURI, licenses)
}

func (s *MCPServer) handleLicenseResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	key := strings.TrimPrefix(uri, licenseURIPrefix)
	if key == "" || key == uri {
		return nil, fmt.Errorf("invalid license URI %q: expected %s{key}", uri, licenseURIPrefix)
	}

	detail, err := s.licenses.GetLicense(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("license %q: %w", key, err)
	}
	return jsonContents(uri, detail)
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
