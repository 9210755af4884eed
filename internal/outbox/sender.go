// Package outbox drains queued replies and hands them to the wire transport.
// Replies enter the message log through the ingestion engine, not directly,
// so reply counting, dedup pre-recording and event fan-out stay in one place.
package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gfranca/leadflow/internal/ident"
	"github.com/gfranca/leadflow/internal/store"
)

// TextSender is the transport side of sending a reply.
type TextSender interface {
	SendText(ctx context.Context, address string, text string) (serverMsgID string, err error)
}

// ReplyRecorder appends a sent reply to the lead's message log.
type ReplyRecorder interface {
	RecordReply(leadID, body string, at time.Time) (*store.Message, error)
}

// Sender polls the outbox and sends queued replies via the transport.
type Sender struct {
	db       *store.DB
	sender   TextSender
	recorder ReplyRecorder
	logger   *zap.Logger
	interval time.Duration
	cancel   context.CancelFunc
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, ts TextSender, recorder ReplyRecorder, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:       db,
		sender:   ts,
		recorder: recorder,
		logger:   logger,
		interval: 500 * time.Millisecond,
	}
}

// Start begins polling the outbox for queued replies.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ProcessPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessPending drains all currently queued outbox entries once.
func (s *Sender) ProcessPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		s.processEntry(ctx, entry)
	}
}

func (s *Sender) processEntry(ctx context.Context, entry store.OutboxEntry) {
	if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
		s.logger.Error("failed to mark sending",
			zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		return
	}

	lead, err := s.db.GetLead(entry.LeadID)
	if err == nil && lead == nil {
		// Lead merged away or deleted between queueing and sending.
		err = store.ErrLeadNotFound
	}
	if err != nil {
		s.logger.Error("outbox entry has no lead",
			zap.Error(err), zap.String("lead_id", entry.LeadID))
		_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
		return
	}

	address := lead.Address
	if address == "" {
		address = ident.CanonicalAddressFor(lead.Phone, "")
	}

	serverMsgID, err := s.sender.SendText(ctx, address, entry.Body)
	if err != nil {
		s.logger.Error("failed to send reply",
			zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
		return
	}

	if err := s.db.MarkOutboxSent(entry.ClientMsgID, serverMsgID); err != nil {
		s.logger.Error("failed to mark sent",
			zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
	}

	if _, err := s.recorder.RecordReply(lead.ID, entry.Body, time.Now()); err != nil {
		s.logger.Error("failed to record sent reply",
			zap.Error(err), zap.String("lead_id", lead.ID))
		return
	}

	s.logger.Info("reply sent",
		zap.String("client_msg_id", entry.ClientMsgID),
		zap.String("server_msg_id", serverMsgID),
		zap.String("lead_id", lead.ID))
}
