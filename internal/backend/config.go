package backend

import (
	"errors"
	"fmt"

	"saldo/internal/config"
	gsheet "saldo/internal/sheets/google"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	source := ObservationSource(appConfig.ObservationSource)
	if source == "" {
		source = StoreObservations
	}
	if !source.IsValid() {
		return Config{}, fmt.Errorf("invalid observation source in config: %s", appConfig.ObservationSource)
	}

	return Config{
		Type:         backendType,
		Observations: source,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		QueryTimeout: appConfig.StoreQueryTimeout,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		Sheets: gsheet.Options{
			SpreadsheetID:      appConfig.GoogleSpreadsheetID,
			BankSheetName:      appConfig.GoogleBankSheetName,
			BillingSheetName:   appConfig.GoogleBillingSheetName,
			ServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
			ServiceAccountFile: appConfig.GoogleServiceAccountFile,
			OAuthClientJSON:    appConfig.GoogleOAuthClientJSON,
			OAuthClientFile:    appConfig.GoogleOAuthClientFile,
			OAuthTokenJSON:     appConfig.GoogleOAuthTokenJSON,
			OAuthTokenFile:     appConfig.GoogleOAuthTokenFile,
		},
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Observations != "" && !c.Observations.IsValid() {
		return fmt.Errorf("invalid observation source: %s", c.Observations)
	}

	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required for sqlite backend")
	}

	if c.Observations == SheetsObservations {
		s := c.Sheets
		if s.SpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets observations")
		}
		if s.BankSheetName == "" || s.BillingSheetName == "" {
			return errors.New("bank and billing sheet names are required for sheets observations")
		}
		hasServiceAccount := s.ServiceAccountJSON != "" || s.ServiceAccountFile != ""
		hasClient := s.OAuthClientJSON != "" || s.OAuthClientFile != ""
		hasToken := s.OAuthTokenJSON != "" || s.OAuthTokenFile != ""
		if !hasServiceAccount && !(hasClient && hasToken) {
			return errors.New("sheets observations need a service account or an OAuth client plus token")
		}
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
