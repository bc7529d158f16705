package datastore

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	json "github.com/json-iterator/go"
	"google.golang.org/api/googleapi"
)

// AccessError is a Sheets API failure with a hint on how to fix it.
type AccessError struct {
	Code int
	Hint string
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%v (hint: %s)", e.Err, e.Hint)
}

func (e *AccessError) Unwrap() error { return e.Err }

// withHint attaches a remediation hint to 403 and 400 responses.
func withHint(err error, credentialsPath string) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch gerr.Code {
	case http.StatusForbidden:
		hint := "share the spreadsheet with the service account"
		if email := clientEmail(credentialsPath); email != "" {
			hint = fmt.Sprintf("share the spreadsheet with %s", email)
		}
		return &AccessError{Code: gerr.Code, Hint: hint, Err: err}
	case http.StatusBadRequest:
		return &AccessError{
			Code: gerr.Code,
			Hint: "the range or sheet name is likely invalid; verify the tab names and that the range is correct",
			Err:  err,
		}
	}
	return err
}

// clientEmail reads the service account address from a credentials file.
func clientEmail(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return ""
	}
	return creds.ClientEmail
}
