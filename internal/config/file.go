package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML layout of a configuration file:
//
//	deployment: server
//	server:
//	  baseUrl: https://jira.example.com
//	  authType: token
//	  token: ...
//	defaultProject: PROJ
type fileConfig struct {
	Deployment string `yaml:"deployment"`
	Cloud      struct {
		ClientID     string `yaml:"clientId"`
		ClientSecret string `yaml:"clientSecret"`
		BaseURL      string `yaml:"baseUrl"`
	} `yaml:"cloud"`
	Server struct {
		BaseURL           string `yaml:"baseUrl"`
		AuthType          string `yaml:"authType"`
		Token             string `yaml:"token"`
		Username          string `yaml:"username"`
		Password          string `yaml:"password"`
		EnvironmentsField string `yaml:"testEnvironmentsField"`
	} `yaml:"server"`
	DefaultProject string `yaml:"defaultProject"`
	HTTPTimeout    string `yaml:"httpTimeout"`
}

// FileSource reads a YAML configuration file.
func FileSource(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	values := map[string]string{}
	set := func(key, val string) {
		if val != "" {
			values[key] = val
		}
	}
	set(KeyDeployment, fc.Deployment)
	set(KeyCloudClientID, fc.Cloud.ClientID)
	set(KeyCloudClientSecret, fc.Cloud.ClientSecret)
	set(KeyCloudBaseURL, fc.Cloud.BaseURL)
	set(KeyJiraBaseURL, fc.Server.BaseURL)
	set(KeyAuthType, fc.Server.AuthType)
	set(KeyToken, fc.Server.Token)
	set(KeyUsername, fc.Server.Username)
	set(KeyPassword, fc.Server.Password)
	set(KeyEnvironmentsField, fc.Server.EnvironmentsField)
	set(KeyDefaultProject, fc.DefaultProject)
	set(KeyHTTPTimeout, fc.HTTPTimeout)

	return NewMapSource(path, values), nil
}
