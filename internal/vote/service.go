// Package vote orchestrates signature verification and the ledger behind
// a single request/response contract.
package vote

import (
	"context"
	"errors"
	"time"

	"artvote/internal/config"
	"artvote/internal/holdership"
	"artvote/internal/ledger"
	"artvote/internal/logger"
	"artvote/internal/metrics"
	"artvote/internal/models"
	"artvote/internal/signature"
)

// Options wires a Service. Strategy and Verifier are required.
type Options struct {
	Strategy        ledger.Strategy
	Verifier        signature.Verifier
	Gate            holdership.Checker // nil disables token gating
	Metrics         *metrics.Metrics
	Logger          *logger.Logger
	MessageMode     string
	MessageTemplate string
}

// Result describes an accepted vote. Record is set under the single policy.
type Result struct {
	Policy    ledger.Policy
	ArtworkID string
	Record    *models.VoteRecord
	Total     int64
}

type Service struct {
	strategy ledger.Strategy
	verifier signature.Verifier
	gate     holdership.Checker
	metrics  *metrics.Metrics
	log      *logger.Logger
	mode     string
	template string
}

func New(opts Options) (*Service, error) {
	if opts.Strategy == nil {
		return nil, errors.New("vote service needs a ledger strategy")
	}
	if opts.Verifier == nil {
		return nil, errors.New("vote service needs a signature verifier")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.MessageMode == "" {
		opts.MessageMode = config.MessageModeClient
	}
	if opts.MessageTemplate == "" {
		opts.MessageTemplate = config.DefaultMessageTemplate
	}
	return &Service{
		strategy: opts.Strategy,
		verifier: opts.Verifier,
		gate:     opts.Gate,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		mode:     opts.MessageMode,
		template: opts.MessageTemplate,
	}, nil
}

// Policy returns the active duplicate-vote policy.
func (s *Service) Policy() ledger.Policy {
	return s.strategy.Policy()
}

// Submit validates, authenticates and records one vote. Every rejection is
// a *Error whose Kind is one of the package's Err* values.
func (s *Service) Submit(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := s.submit(ctx, req)
	s.metrics.ObserveVote(string(s.strategy.Policy()), outcome(err), time.Since(start))
	return res, err
}

func (s *Service) submit(ctx context.Context, req Request) (Result, error) {
	if problems := req.Validate(s.mode); len(problems) > 0 {
		s.log.Debugf("vote rejected: bad request wallet=%q artwork=%q problems=%v", req.WalletAddress, req.ArtworkID, problems)
		return Result{}, validationError(problems...)
	}

	message := req.Message
	if s.mode == config.MessageModeCanonical {
		message = CanonicalMessage(s.template, req.ArtworkID)
	}

	// Verification gates the write
	ok, err := s.verifier.Verify(req.WalletAddress, message, req.Signature)
	if err != nil {
		if isDecodeError(err) {
			return Result{}, validationError(err.Error())
		}
		s.log.Errorf("vote failed: verifier wallet=%s artwork=%q: %v", req.WalletAddress, req.ArtworkID, err)
		return Result{}, storageError(err)
	}
	if !ok {
		s.log.Warnf("vote rejected: invalid signature wallet=%s artwork=%q", req.WalletAddress, req.ArtworkID)
		return Result{}, authenticationError()
	}

	if s.gate != nil {
		holds, err := s.gate.HasBalance(ctx, req.WalletAddress)
		if err != nil {
			s.log.Errorf("vote failed: token balance wallet=%s: %v", req.WalletAddress, err)
			return Result{}, storageError(err)
		}
		if !holds {
			s.log.Printf("vote rejected: not a holder wallet=%s artwork=%q", req.WalletAddress, req.ArtworkID)
			return Result{}, forbiddenError()
		}
	}

	ballot := ledger.Ballot{
		WalletAddress: req.WalletAddress,
		ArtworkID:     req.ArtworkID,
		Value:         models.DefaultVoteValue,
	}
	if req.VoteValue != nil {
		ballot.Value = *req.VoteValue
	}

	// A caller that goes away must not leave the write half applied
	out, err := s.strategy.Cast(context.WithoutCancel(ctx), ballot)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateVote) {
			s.log.Printf("vote rejected: already voted wallet=%s artwork=%q", req.WalletAddress, req.ArtworkID)
			return Result{}, conflictError(err)
		}
		s.log.Errorf("vote failed: ledger wallet=%s artwork=%q: %v", req.WalletAddress, req.ArtworkID, err)
		return Result{}, storageError(err)
	}

	s.log.Printf("vote recorded wallet=%s artwork=%q policy=%s total=%d", req.WalletAddress, req.ArtworkID, s.strategy.Policy(), out.Total)
	return Result{
		Policy:    s.strategy.Policy(),
		ArtworkID: req.ArtworkID,
		Record:    out.Record,
		Total:     out.Total,
	}, nil
}

// Total returns the vote total for one artwork under the active policy.
func (s *Service) Total(ctx context.Context, artworkID string) (int64, error) {
	total, err := s.strategy.Total(ctx, artworkID)
	if err != nil {
		s.log.Errorf("vote total failed artwork=%q: %v", artworkID, err)
		return 0, storageError(err)
	}
	return total, nil
}

// Totals returns every artwork's vote total, for the gallery listing.
func (s *Service) Totals(ctx context.Context) (map[string]int64, error) {
	totals, err := s.strategy.Totals(ctx)
	if err != nil {
		s.log.Errorf("vote totals failed: %v", err)
		return nil, storageError(err)
	}
	return totals, nil
}
