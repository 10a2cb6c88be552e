package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig(maxRetries int) Config {
	return Config{
		MaxRetries: maxRetries,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   100 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     false, // Disable jitter for predictable testing
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries=3, got %d", config.MaxRetries)
	}

	if config.BaseDelay != time.Second {
		t.Errorf("Expected BaseDelay=1s, got %v", config.BaseDelay)
	}

	if config.MaxDelay != 30*time.Second {
		t.Errorf("Expected MaxDelay=30s, got %v", config.MaxDelay)
	}

	if !config.Jitter {
		t.Error("Expected Jitter=true")
	}
}

func TestCatalogConfig(t *testing.T) {
	config := CatalogConfig()

	if config.MaxRetries != 2 {
		t.Errorf("Expected MaxRetries=2, got %d", config.MaxRetries)
	}

	if config.MaxDelay != 5*time.Second {
		t.Errorf("Expected MaxDelay=5s, got %v", config.MaxDelay)
	}

	if config.Operation != "fetch_models" {
		t.Errorf("Expected Operation=fetch_models, got %q", config.Operation)
	}
}

func TestWithBackoff_Success(t *testing.T) {
	result := WithBackoff(context.Background(), testConfig(2), func(ctx context.Context) error {
		return nil
	})

	if !result.Success {
		t.Error("Expected success=true")
	}

	if result.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", result.Attempts)
	}

	if len(result.RetryReasons) != 0 {
		t.Errorf("Expected no retry reasons, got %d", len(result.RetryReasons))
	}
}

func TestWithBackoff_EventualSuccess(t *testing.T) {
	attempts := 0
	result := WithBackoff(context.Background(), testConfig(3), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary failure")
		}
		return nil
	})

	if !result.Success {
		t.Error("Expected success=true")
	}

	if result.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", result.Attempts)
	}

	expectedReasons := []string{"temporary failure", "temporary failure"}
	if len(result.RetryReasons) != len(expectedReasons) {
		t.Errorf("Expected %d retry reasons, got %d", len(expectedReasons), len(result.RetryReasons))
	}

	if result.TotalDuration == 0 {
		t.Error("Expected non-zero total duration")
	}
}

func TestWithBackoff_AllAttemptsFailure(t *testing.T) {
	expectedError := errors.New("HTTP 503 Service Unavailable")
	result := WithBackoff(context.Background(), testConfig(2), func(ctx context.Context) error {
		return expectedError
	})

	if result.Success {
		t.Error("Expected success=false")
	}

	if result.Attempts != 3 { // MaxRetries + 1
		t.Errorf("Expected 3 attempts, got %d", result.Attempts)
	}

	if result.LastError != expectedError {
		t.Errorf("Expected last error to be %v, got %v", expectedError, result.LastError)
	}
}

func TestWithBackoff_StopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	result := WithBackoff(context.Background(), testConfig(5), func(ctx context.Context) error {
		attempts++
		return errors.New("HTTP 401 Unauthorized")
	})

	if result.Success {
		t.Error("Expected success=false")
	}

	if attempts != 1 {
		t.Errorf("Expected a single attempt for a non-retryable error, got %d", attempts)
	}
}

func TestWithBackoff_CustomRetryable(t *testing.T) {
	config := testConfig(2)
	config.Retryable = func(error) bool { return true }

	attempts := 0
	result := WithBackoff(context.Background(), config, func(ctx context.Context) error {
		attempts++
		return errors.New("invalid input")
	})

	if attempts != 3 {
		t.Errorf("Expected 3 attempts with custom predicate, got %d", attempts)
	}

	if result.Success {
		t.Error("Expected success=false")
	}
}

func TestWithBackoff_ContextCancellation(t *testing.T) {
	config := Config{
		MaxRetries: 5,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
		Jitter:     false,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := WithBackoff(ctx, config, func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	if result.Success {
		t.Error("Expected success=false due to context cancellation")
	}

	if result.LastError != context.DeadlineExceeded {
		t.Errorf("Expected context.DeadlineExceeded, got %v", result.LastError)
	}

	if result.Attempts > 2 {
		t.Errorf("Expected few attempts due to quick timeout, got %d", result.Attempts)
	}
}

func TestCalculateDelay(t *testing.T) {
	config := Config{
		BaseDelay:  1 * time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     false,
	}

	if d := calculateDelay(config, 0); d != 1*time.Second {
		t.Errorf("Expected delay0=1s, got %v", d)
	}

	if d := calculateDelay(config, 1); d != 2*time.Second {
		t.Errorf("Expected delay1=2s, got %v", d)
	}

	if d := calculateDelay(config, 2); d != 4*time.Second {
		t.Errorf("Expected delay2=4s, got %v", d)
	}

	if d := calculateDelay(config, 10); d != 10*time.Second {
		t.Errorf("Expected delay10=10s (capped), got %v", d)
	}
}

func TestCalculateDelay_WithJitter(t *testing.T) {
	config := Config{
		BaseDelay:  1 * time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}

	expectedBase := 2 * time.Second
	tolerance := 200 * time.Millisecond // 10% of 2s

	for i := 0; i < 20; i++ {
		if d := calculateDelay(config, 1); abs(d-expectedBase) > tolerance {
			t.Errorf("delay %v too far from expected %v", d, expectedBase)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	retryableErrors := []error{
		errors.New("connection refused"),
		errors.New("connection timeout"),
		errors.New("temporary failure"),
		errors.New("HTTP 429 Too Many Requests"),
		errors.New("HTTP 502 Bad Gateway"),
		errors.New("HTTP 503 Service Unavailable"),
		errors.New("context deadline exceeded"),
		errors.New("unexpected EOF"),
	}

	for _, err := range retryableErrors {
		if !IsRetryableError(err) {
			t.Errorf("Expected %v to be retryable", err)
		}
	}

	nonRetryableErrors := []error{
		errors.New("invalid input"),
		errors.New("permission denied"),
		errors.New("HTTP 400 Bad Request"),
		errors.New("HTTP 401 Unauthorized"),
		errors.New("HTTP 404 Not Found"),
	}

	for _, err := range nonRetryableErrors {
		if IsRetryableError(err) {
			t.Errorf("Expected %v to NOT be retryable", err)
		}
	}

	if IsRetryableError(nil) {
		t.Error("Expected nil error to NOT be retryable")
	}
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
