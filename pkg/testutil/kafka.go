package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// BrokersEnv lists the Kafka brokers used by integration tests
const BrokersEnv = "ARROWBUS_TEST_BROKERS"

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// Brokers returns the brokers from ARROWBUS_TEST_BROKERS, or skips the test
func Brokers(t *testing.T) []string {
	t.Helper()
	raw := os.Getenv(BrokersEnv)
	if raw == "" {
		t.Skipf("%s not set", BrokersEnv)
	}
	return strings.Split(raw, ",")
}

// KafkaSuite provides base functionality for tests against a live broker.
// Each test gets a fresh topic name so runs do not see each other's messages.
type KafkaSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	brokers   []string
	topic     string
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *KafkaSuite) SetupSuite() {
	IntegrationTest(s.T())
	s.brokers = Brokers(s.T())
	s.startTime = time.Now()
}

// SetupTest runs before each test
func (s *KafkaSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 2*time.Minute)
	s.topic = fmt.Sprintf("arrowbus-it-%d", time.Now().UnixNano())
}

// TearDownTest runs after each test
func (s *KafkaSuite) TearDownTest() {
	if s.cancel != nil {
		s.cancel()
	}
}

// TearDownSuite runs after all tests in the suite
func (s *KafkaSuite) TearDownSuite() {
	s.T().Logf("Kafka suite completed in %v", time.Since(s.startTime))
}

// Context returns the per-test context
func (s *KafkaSuite) Context() context.Context {
	return s.ctx
}

// Brokers returns the broker list
func (s *KafkaSuite) Brokers() []string {
	return s.brokers
}

// Topic returns the per-test topic name
func (s *KafkaSuite) Topic() string {
	return s.topic
}
