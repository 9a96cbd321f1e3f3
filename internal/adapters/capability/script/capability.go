// Package script performs capability actions by running an operator supplied executable once per action.
//
// The child receives the action through OPOOL_* environment variables and reports its outcome through
// its exit status and, optionally, one JSON line on stdout:
//
//	{"ok": false, "error": "rate_throttled", "retry_after": 300, "message": "slow down"}
//
// Provider-specific error names are normalized into the pool's error kinds.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
)

// Exit codes a script may use instead of printing a JSON result.
const (
	ExitRateThrottled       = 10
	ExitAbuseFlagged        = 11
	ExitIdentityInvalidated = 12
	ExitTargetUnreachable   = 13
)

const maxMessageLen = 512

type runFunc func(ctx context.Context, env []string, name string, args ...string) (stdout string, stderr string, exitCode int, err error)

type Capability struct {
	command     string
	args        []string
	credentials ports.CredentialStore
	timeout     time.Duration
	run         runFunc
}

var _ ports.Capability = (*Capability)(nil)

type Option func(*Capability)

// WithTimeout bounds each invocation. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Capability) {
		c.timeout = timeout
	}
}

func WithArgs(args ...string) Option {
	return func(c *Capability) {
		c.args = append([]string(nil), args...)
	}
}

func New(command string, credentials ports.CredentialStore, opts ...Option) *Capability {
	capability := &Capability{
		command:     strings.TrimSpace(command),
		credentials: credentials,
		run:         runCommand,
	}
	for _, opt := range opts {
		opt(capability)
	}
	return capability
}

type result struct {
	OK         *bool   `json:"ok"`
	Error      string  `json:"error"`
	RetryAfter float64 `json:"retry_after"`
	Message    string  `json:"message"`
}

func (c *Capability) Invoke(ctx context.Context, inv ports.Invocation) error {
	if c.command == "" {
		return errors.New("capability command is not configured")
	}

	credential, err := c.credential(ctx, inv.CredentialRef)
	if err != nil {
		if errors.Is(err, domain.ErrSecretNotFound) {
			return &domain.CapabilityError{Kind: domain.ErrorKindCredentialMissing, Message: "no credential stored for " + string(inv.AccountID)}
		}
		return err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	env := append(os.Environ(),
		"OPOOL_CAPABILITY="+string(inv.Capability),
		"OPOOL_ACCOUNT_ID="+string(inv.AccountID),
		"OPOOL_CREDENTIAL="+credential,
		"OPOOL_SUBJECT="+inv.Subject,
		"OPOOL_DESTINATION="+string(inv.Destination),
	)
	stdout, stderr, exitCode, runErr := c.run(ctx, env, c.command, c.args...)

	return normalize(stdout, stderr, exitCode, runErr)
}

func (c *Capability) credential(ctx context.Context, ref string) (string, error) {
	if ref == "" || c.credentials == nil {
		return "", nil
	}

	credential, err := c.credentials.Get(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("resolve credential: %w", err)
	}
	return credential, nil
}

// normalize turns the child's exit status and output into nil or a *domain.CapabilityError.
// A JSON result on the last stdout line wins over the exit code.
func normalize(stdout, stderr string, exitCode int, runErr error) error {
	if res, ok := parseResult(stdout); ok {
		if res.Error == "" && (res.OK == nil || *res.OK) {
			if runErr != nil && exitCode != 0 {
				return unknownFailure(exitCode, stderr, runErr)
			}
			return nil
		}
		message := res.Message
		if message == "" {
			message = trimMessage(stderr)
		}
		return &domain.CapabilityError{
			Kind:       NormalizeKind(res.Error),
			RetryAfter: time.Duration(res.RetryAfter * float64(time.Second)),
			Message:    message,
		}
	}

	if runErr == nil {
		return nil
	}

	switch exitCode {
	case ExitRateThrottled:
		return &domain.CapabilityError{Kind: domain.ErrorKindRateThrottled, Message: trimMessage(stderr)}
	case ExitAbuseFlagged:
		return &domain.CapabilityError{Kind: domain.ErrorKindAbuseFlagged, Message: trimMessage(stderr)}
	case ExitIdentityInvalidated:
		return &domain.CapabilityError{Kind: domain.ErrorKindIdentityInvalidated, Message: trimMessage(stderr)}
	case ExitTargetUnreachable:
		return &domain.CapabilityError{Kind: domain.ErrorKindTargetUnreachable, Message: trimMessage(stderr)}
	default:
		return unknownFailure(exitCode, stderr, runErr)
	}
}

func unknownFailure(exitCode int, stderr string, runErr error) error {
	message := trimMessage(stderr)
	if message == "" {
		message = runErr.Error()
	}
	return &domain.CapabilityError{Kind: domain.ErrorKindUnknown, Message: fmt.Sprintf("exit %d: %s", exitCode, message)}
}

func parseResult(stdout string) (result, bool) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if !strings.HasPrefix(last, "{") {
		return result{}, false
	}

	var res result
	if err := json.Unmarshal([]byte(last), &res); err != nil {
		return result{}, false
	}
	return res, true
}

// NormalizeKind maps provider error names onto the pool's error kinds; unrecognized names are unknown.
func NormalizeKind(raw string) domain.ErrorKind {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.NewReplacer("-", "_", " ", "_").Replace(name)

	switch name {
	case "rate_throttled", "rate_limited", "ratelimited", "throttled", "too_many_requests", "429", "slowmode_wait":
		return domain.ErrorKindRateThrottled
	case "abuse_flagged", "abuse", "spam", "flood", "flood_wait", "peer_flood", "spam_detected":
		return domain.ErrorKindAbuseFlagged
	case "identity_invalidated", "unauthorized", "401", "auth_key_unregistered", "session_revoked",
		"session_expired", "user_deactivated", "banned", "account_banned":
		return domain.ErrorKindIdentityInvalidated
	case "credential_missing", "no_credential", "login_required":
		return domain.ErrorKindCredentialMissing
	case "target_unreachable", "not_found", "404", "user_not_found", "privacy_restricted", "user_privacy_restricted",
		"user_not_mutual_contact", "channel_private", "user_blocked":
		return domain.ErrorKindTargetUnreachable
	default:
		return domain.ErrorKindUnknown
	}
}

func trimMessage(stderr string) string {
	message := strings.TrimSpace(stderr)
	if len(message) > maxMessageLen {
		message = message[:maxMessageLen]
	}
	return message
}

func runCommand(ctx context.Context, env []string, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}
	return stdout.String(), stderr.String(), exitCode, err
}
