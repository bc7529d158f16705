package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/formpilot/internal/mocks"
)

func TestComponents_Shutdown(t *testing.T) {
	mockBrowserManager := new(MockBrowserManager)
	mockHistory := new(mocks.MockHistoryStore)

	mockBrowserManager.On("Shutdown", mock.Anything).Return(nil)
	mockHistory.On("Close").Return()

	components := &Components{
		BrowserManager: mockBrowserManager,
		History:        mockHistory,
	}

	components.Shutdown()

	mockBrowserManager.AssertExpectations(t)
	mockHistory.AssertExpectations(t)
}

func TestComponents_Shutdown_BrowserErrorStillClosesHistory(t *testing.T) {
	mockBrowserManager := new(MockBrowserManager)
	mockHistory := new(mocks.MockHistoryStore)

	mockBrowserManager.On("Shutdown", mock.Anything).Return(errors.New("chrome hung"))
	mockHistory.On("Close").Return()

	(&Components{BrowserManager: mockBrowserManager, History: mockHistory}).Shutdown()

	mockHistory.AssertCalled(t, "Close")
}

func TestComponents_Shutdown_Partial(t *testing.T) {
	// A zero value must be safe to shut down.
	(&Components{}).Shutdown()
}
