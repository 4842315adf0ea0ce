// Package config loads and validates the Xray connection settings. Values are
// keyed by their environment variable names regardless of the source they
// come from.
package config

import "time"

// Deployment selects the Xray backend.
type Deployment string

const (
	DeploymentCloud  Deployment = "cloud"
	DeploymentServer Deployment = "server"
)

// AuthType selects how the server backend authenticates.
type AuthType string

const (
	AuthToken AuthType = "token"
	AuthBasic AuthType = "basic"
)

// Configuration keys.
const (
	KeyDeployment        = "XRAY_DEPLOYMENT"
	KeyCloudClientID     = "XRAY_CLOUD_CLIENT_ID"
	KeyCloudClientSecret = "XRAY_CLOUD_CLIENT_SECRET"
	KeyCloudBaseURL      = "XRAY_CLOUD_BASE_URL"
	KeyJiraBaseURL       = "XRAY_JIRA_BASE_URL"
	KeyAuthType          = "XRAY_AUTH_TYPE"
	KeyToken             = "XRAY_TOKEN"
	KeyUsername          = "XRAY_USERNAME"
	KeyPassword          = "XRAY_PASSWORD"
	KeyDefaultProject    = "XRAY_DEFAULT_PROJECT"
	KeyEnvironmentsField = "XRAY_TEST_ENVIRONMENTS_FIELD"
	KeyHTTPTimeout       = "XRAY_HTTP_TIMEOUT"
)

// Keys lists every key understood by Load.
var Keys = []string{
	KeyDeployment,
	KeyCloudClientID,
	KeyCloudClientSecret,
	KeyCloudBaseURL,
	KeyJiraBaseURL,
	KeyAuthType,
	KeyToken,
	KeyUsername,
	KeyPassword,
	KeyDefaultProject,
	KeyEnvironmentsField,
	KeyHTTPTimeout,
}

// DefaultHTTPTimeout applies when XRAY_HTTP_TIMEOUT is unset.
const DefaultHTTPTimeout = 30 * time.Second

// Config is the validated configuration. Exactly one of Cloud and Server is set,
// matching Deployment.
type Config struct {
	Deployment Deployment
	Cloud      *CloudCredentials
	Server     *ServerCredentials

	// DefaultProject is used by tools when no projectKey argument is given.
	DefaultProject string
	// EnvironmentsField is the Jira field holding test environments (server only).
	EnvironmentsField string
	HTTPTimeout       time.Duration
}

// CloudCredentials is an Xray Cloud API key pair.
type CloudCredentials struct {
	ClientID     string
	ClientSecret string
	// BaseURL overrides the global API root, e.g. for a regional instance.
	BaseURL string
}

// ServerCredentials address a Jira Server/Data Center instance.
type ServerCredentials struct {
	BaseURL  string
	AuthType AuthType
	Token    string
	Username string
	Password string
}

// Redacted returns a printable summary without secrets.
func (c *Config) Redacted() map[string]string {
	out := map[string]string{
		KeyDeployment:  string(c.Deployment),
		KeyHTTPTimeout: c.HTTPTimeout.String(),
	}
	if c.DefaultProject != "" {
		out[KeyDefaultProject] = c.DefaultProject
	}
	switch {
	case c.Cloud != nil:
		out[KeyCloudClientID] = mask(c.Cloud.ClientID)
		out[KeyCloudClientSecret] = mask(c.Cloud.ClientSecret)
		if c.Cloud.BaseURL != "" {
			out[KeyCloudBaseURL] = c.Cloud.BaseURL
		}
	case c.Server != nil:
		out[KeyJiraBaseURL] = c.Server.BaseURL
		out[KeyAuthType] = string(c.Server.AuthType)
		if c.Server.AuthType == AuthToken {
			out[KeyToken] = mask(c.Server.Token)
		} else {
			out[KeyUsername] = c.Server.Username
			out[KeyPassword] = mask(c.Server.Password)
		}
		if c.EnvironmentsField != "" {
			out[KeyEnvironmentsField] = c.EnvironmentsField
		}
	}
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}
