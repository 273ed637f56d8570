package approval

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/safareli/http-proxy/pkg/model"
	"github.com/safareli/http-proxy/pkg/sanitize"
)

// CLITransport prompts the operator on stderr and reads a decision from
// stdin, bounding the wait by Timeout. It mirrors the teacher's device-flow
// prompt idiom: the read runs in its own goroutine so it can be abandoned
// the instant ctx is cancelled or Timeout elapses, without blocking the
// OS thread on stdin past that point.
type CLITransport struct {
	In      io.Reader
	Out     io.Writer
	Timeout time.Duration

	scanner *bufio.Scanner
}

// NewCLITransport returns a CLITransport reading from in and writing
// prompts to out, timing a prompt out after timeout.
func NewCLITransport(in io.Reader, out io.Writer, timeout time.Duration) *CLITransport {
	return &CLITransport{In: in, Out: out, Timeout: timeout, scanner: bufio.NewScanner(in)}
}

// Request implements Transport.
func (t *CLITransport) Request(ctx context.Context, req Request) (model.ApprovalDecision, error) {
	promptCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	// Prompt text is derived from guest-controlled request data; strip
	// invisible Unicode so a hidden character can't disguise what the
	// operator is approving.
	fmt.Fprintf(t.Out, "\napproval requested [%s] %s %s\n",
		req.ID, req.MethodLabel, sanitize.FilterInvisibleCharacters(req.PathOrDescription))
	for i, opt := range req.Options {
		fmt.Fprintf(t.Out, "  %d) %s - %s\n",
			i+1, sanitize.FilterInvisibleCharacters(opt.Pattern), sanitize.FilterInvisibleCharacters(opt.Description))
	}
	fmt.Fprintf(t.Out, "decide: allow-once | allow-forever <n> | reject-once | reject-forever <n>\n> ")

	lineCh := make(chan string, 1)
	go func() {
		if t.scanner.Scan() {
			lineCh <- t.scanner.Text()
		}
		close(lineCh)
	}()

	select {
	case <-promptCtx.Done():
		timedOut := errors.Is(promptCtx.Err(), context.DeadlineExceeded)
		if timedOut {
			fmt.Fprintf(t.Out, "\napproval [%s] timed out; treating as reject-once\n", req.ID)
		} else {
			fmt.Fprintf(t.Out, "\napproval [%s] was cancelled; treating as reject-once\n", req.ID)
		}
		return model.ApprovalDecision{Kind: model.RejectOnce, TimedOut: timedOut}, nil
	case line, ok := <-lineCh:
		if !ok {
			return model.ApprovalDecision{Kind: model.RejectOnce}, nil
		}
		return parseDecision(line, req.Options)
	}
}

func parseDecision(line string, options []model.PatternOption) (model.ApprovalDecision, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return model.ApprovalDecision{}, fmt.Errorf("empty decision")
	}

	switch fields[0] {
	case "allow-once":
		return model.ApprovalDecision{Kind: model.AllowOnce}, nil
	case "reject-once":
		return model.ApprovalDecision{Kind: model.RejectOnce}, nil
	case "allow-forever":
		pattern, err := resolvePattern(fields, options)
		if err != nil {
			return model.ApprovalDecision{}, err
		}
		return model.ApprovalDecision{Kind: model.AllowForever, Pattern: pattern}, nil
	case "reject-forever":
		pattern, err := resolvePattern(fields, options)
		if err != nil {
			return model.ApprovalDecision{}, err
		}
		return model.ApprovalDecision{Kind: model.RejectForever, Pattern: pattern}, nil
	default:
		return model.ApprovalDecision{}, fmt.Errorf("unrecognized decision %q", fields[0])
	}
}

func resolvePattern(fields []string, options []model.PatternOption) (string, error) {
	if len(fields) < 2 {
		return "", fmt.Errorf("a forever decision requires an option number")
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 || n > len(options) {
		return "", fmt.Errorf("invalid option number %q", fields[1])
	}
	return options[n-1].Pattern, nil
}
