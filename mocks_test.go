package identity_test

import (
	"context"
	"sync"
	"time"

	identity "github.com/barrettc/go-identity"
	"github.com/stretchr/testify/mock"
)

// MockConfig implements identity.Config
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) GetSigningKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetIssuer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAudience() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockConfig) GetTokenExpiration() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockConfig) GetMFATokenExpiration() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockConfig) GetOneTimeCodeLength() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockConfig) GetOneTimeCodeTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockConfig) GetMaxLoginAttempts() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockConfig) GetCooldownPeriod() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func newMockConfig() *MockConfig {
	mockConfig := new(MockConfig)
	mockConfig.On("GetSigningKey").Return("test-signing-key-0123456789abcdef")
	mockConfig.On("GetTokenExpiration").Return(60)
	mockConfig.On("GetMFATokenExpiration").Return(10)
	mockConfig.On("GetIssuer").Return("test-issuer")
	mockConfig.On("GetAudience").Return([]string{"test:audience"})
	mockConfig.On("GetOneTimeCodeLength").Return(6)
	mockConfig.On("GetOneTimeCodeTTL").Return(10 * time.Minute)
	mockConfig.On("GetMaxLoginAttempts").Return(5)
	mockConfig.On("GetCooldownPeriod").Return(24 * time.Hour)
	return mockConfig
}

// capturingAuditSink records every audit event it sees.
type capturingAuditSink struct {
	mu     sync.Mutex
	events []identity.AuditEvent
}

func (c *capturingAuditSink) Record(ctx context.Context, event identity.AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturingAuditSink) byType(eventType identity.AuditEventType) []identity.AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []identity.AuditEvent
	for _, e := range c.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// capturedNotification is one Notify call observed by captureNotifier.
type capturedNotification struct {
	Email    string
	Activity identity.Activity
	Code     string
}

// captureNotifier records every notification instead of delivering it.
type captureNotifier struct {
	mu   sync.Mutex
	sent []capturedNotification
}

func (n *captureNotifier) Notify(ctx context.Context, account *identity.Account, activity identity.Activity, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, capturedNotification{
		Email:    account.Email,
		Activity: activity,
		Code:     code,
	})
	return nil
}

func (n *captureNotifier) last() (capturedNotification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return capturedNotification{}, false
	}
	return n.sent[len(n.sent)-1], true
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// quietLogger drops everything; tests assert on behavior, not log output.
type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}
