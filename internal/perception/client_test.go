package perception

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyErrTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := classifyErr(ctx, "gemini", fmt.Errorf("rpc error"))
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestClassifyErrProvider(t *testing.T) {
	cause := fmt.Errorf("quota exceeded")
	err := classifyErr(context.Background(), "gemini", cause)

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if perr.Provider != "gemini" || !errors.Is(err, cause) {
		t.Errorf("provider error = %+v", perr)
	}
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), GeminiConfig{})
	if err == nil {
		t.Fatal("expected an error for a missing API key")
	}
}
