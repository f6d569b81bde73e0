package message

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"cipherlog/internal/domain"
	"cipherlog/internal/protocol/addressing"
	"cipherlog/internal/protocol/envelope"
	"cipherlog/internal/schema"
	"cipherlog/internal/services/logview"
	"cipherlog/internal/tasks"
)

// Config tunes the message service. Zero values pick the defaults.
type Config struct {
	// TranscriptLimit is the number of most recent entries returned when the
	// caller passes limit 0. Zero or less means unlimited.
	TranscriptLimit int
	// ClearAttempts is the number of tries per record in ClearChat.
	ClearAttempts int
	// ClearBackoff is the delay before the second try; it doubles every retry.
	ClearBackoff time.Duration
	// PollInterval is the Watch poll period.
	PollInterval time.Duration
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// FixupAndValidate fills defaults.
func (c *Config) FixupAndValidate() {
	if c.ClearAttempts <= 0 {
		c.ClearAttempts = 3
	}
	if c.ClearBackoff <= 0 {
		c.ClearBackoff = 200 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Service implements domain.MessageService over a MessageLog.
type Service struct {
	keys      domain.KeyStore
	msgLog    domain.MessageLog
	registry  domain.PublicKeyRegistry
	decryptor *envelope.Decryptor
	runner    *tasks.Runner
	cfg       Config
	log       *zap.Logger
}

// New constructs a message service. Background self-copy writes run on
// runner. A nil logger discards output.
func New(
	keys domain.KeyStore,
	msgLog domain.MessageLog,
	registry domain.PublicKeyRegistry,
	runner *tasks.Runner,
	cfg Config,
	log *zap.Logger,
) *Service {
	cfg.FixupAndValidate()
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		keys:      keys,
		msgLog:    msgLog,
		registry:  registry,
		decryptor: envelope.NewDecryptor(registry),
		runner:    runner,
		cfg:       cfg,
		log:       log.Named("message"),
	}
}

// SendMessage seals plaintext to the recipient's registered key and
// publishes it under the sender's slot. It returns once the primary record
// is written; the self-copy write is reported through SendResult.SelfCopy.
func (s *Service) SendMessage(
	ctx context.Context,
	from domain.Address,
	to domain.Address,
	plaintext string,
	opts domain.SendOptions,
) (domain.SendResult, error) {
	from, to, err := parsePair(from, to)
	if err != nil {
		return domain.SendResult{}, err
	}
	kp, err := s.keyPair(from)
	if err != nil {
		return domain.SendResult{}, err
	}

	recipientPub, ok, err := s.registry.Fetch(ctx, to)
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("fetch public key for %s: %w", to, err)
	}
	if !ok || recipientPub.IsZero() {
		return domain.SendResult{}, fmt.Errorf("%w: %s", domain.ErrNotRegistered, to)
	}

	ts := logview.NowMillis(s.cfg.Clock)
	conv := addressing.ConversationID(from, to)

	primaryID, err := addressing.NewRecordID(from, ts, addressing.PurposeDirect)
	if err != nil {
		return domain.SendResult{}, err
	}
	primary, err := sealDirect(primaryID, from, to, recipientPub, ts, conv, plaintext, opts)
	if err != nil {
		return domain.SendResult{}, err
	}
	if err := logview.PublishAndWait(ctx, s.msgLog, from, primary); err != nil {
		s.log.Error("send failed", zap.Stringer("from", from), zap.Stringer("to", to), zap.Error(err))
		return domain.SendResult{}, err
	}
	res := domain.SendResult{ID: primary.ID, Timestamp: ts}
	s.log.Debug("message sent", zap.Stringer("id", primary.ID), zap.Uint64("ts", ts))

	// A note to self is already readable by the sender.
	if from == to {
		return res, nil
	}

	name := "self-copy " + primary.ID.String()
	self, err := sealDirect(addressing.SelfCopyID(primary.ID), from, from, kp.Public, ts, conv, plaintext, opts)
	if err != nil {
		s.log.Warn("self-copy not prepared", zap.Stringer("id", primary.ID), zap.Error(err))
		res.SelfCopy = tasks.Failed(name, err)
		return res, nil
	}
	res.SelfCopy = s.runner.Go(name, func(ctx context.Context) error {
		return logview.PublishAndWait(ctx, s.msgLog, from, self)
	})
	return res, nil
}

// Transcript assembles the conversation between me and peer, oldest first.
// limit selects the most recent entries; 0 uses the configured default and a
// negative limit returns everything.
func (s *Service) Transcript(
	ctx context.Context,
	me domain.Address,
	peer domain.Address,
	limit int,
) ([]domain.DecryptedMessage, error) {
	me, peer, err := parsePair(me, peer)
	if err != nil {
		return nil, err
	}
	kp, err := s.keyPair(me)
	if err != nil {
		return nil, err
	}

	rows, err := logview.ReadSlots(ctx, s.msgLog, schema.DirectMessageID, peer, me)
	if err != nil {
		return nil, err
	}
	entries := s.visible(me, peer, s.decode(logview.Dedupe(rows)))
	entries = logview.Tail(entries, s.limit(limit))

	out := make([]domain.DecryptedMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.open(ctx, me, peer, kp, e))
	}
	return out, nil
}

// ClearChat soft-deletes every record me published into the conversation
// with peer. Records published by peer are left untouched.
func (s *Service) ClearChat(
	ctx context.Context,
	me domain.Address,
	peer domain.Address,
) (domain.ClearResult, error) {
	me, peer, err := parsePair(me, peer)
	if err != nil {
		return domain.ClearResult{}, err
	}
	conv := addressing.ConversationID(me, peer)

	own, err := s.ownEntries(ctx, me)
	if err != nil {
		return domain.ClearResult{}, err
	}
	var records []domain.Record
	for _, e := range own {
		if e.rec.ConversationID != conv {
			continue
		}
		rec, err := tombstone(e)
		if err != nil {
			return domain.ClearResult{}, err
		}
		records = append(records, rec)
	}

	res, err := logview.Overwriter{
		Log:      s.msgLog,
		Attempts: s.cfg.ClearAttempts,
		Backoff:  s.cfg.ClearBackoff,
		Logger:   s.log,
	}.Overwrite(ctx, me, records)
	s.log.Info("chat cleared",
		zap.Stringer("me", me),
		zap.Stringer("peer", peer),
		zap.Int("cleared", res.Cleared),
		zap.Int("failed", len(res.Failed)),
	)
	return res, err
}

// DeleteMessage soft-deletes one of me's records together with its
// counterpart: the self-copy of a primary or the primary of a self-copy.
// Counterparts are matched by SelfCopyID; a self-copy with an unrelated id is
// paired by (conversation, timestamp) only when that match is unique.
func (s *Service) DeleteMessage(ctx context.Context, me domain.Address, id domain.RecordID) error {
	me, err := domain.ParseAddress(me.String())
	if err != nil {
		return err
	}
	own, err := s.ownEntries(ctx, me)
	if err != nil {
		return err
	}

	idx := slices.IndexFunc(own, func(e entry) bool { return e.row.ID == id })
	if idx < 0 {
		return fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	target := own[idx]

	records := make([]domain.Record, 0, 2)
	rec, err := tombstone(target)
	if err != nil {
		return err
	}
	records = append(records, rec)

	if c, ok := companion(me, target, own); ok {
		rec, err := tombstone(c)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	if err := logview.PublishAndWait(ctx, s.msgLog, me, records...); err != nil {
		return err
	}
	s.log.Info("message deleted", zap.Stringer("id", id), zap.Int("records", len(records)))
	return nil
}

// companion finds the other half of target's primary/self-copy pair in own.
func companion(me domain.Address, target entry, own []entry) (entry, bool) {
	if target.rec.ConversationID == addressing.ConversationID(me, me) {
		return entry{}, false
	}
	targetIsSelf := target.rec.Recipient == me
	for _, e := range own {
		if targetIsSelf && addressing.SelfCopyID(e.row.ID) == target.row.ID {
			return e, true
		}
		if !targetIsSelf && e.row.ID == addressing.SelfCopyID(target.row.ID) {
			return e, true
		}
	}

	var (
		match entry
		n     int
	)
	for _, e := range own {
		if e.row.ID == target.row.ID ||
			e.rec.ConversationID != target.rec.ConversationID ||
			e.rec.Timestamp != target.rec.Timestamp ||
			(e.rec.Recipient == me) == targetIsSelf {
			continue
		}
		match, n = e, n+1
	}
	return match, n == 1
}

// Watch polls the conversation every PollInterval and calls fn for each
// entry not seen before, oldest first. It returns nil when ctx is done.
// Poll errors are logged and retried on the next tick; a missing local key
// pair ends the watch.
func (s *Service) Watch(
	ctx context.Context,
	me domain.Address,
	peer domain.Address,
	fn func(domain.DecryptedMessage),
) error {
	seen := make(map[domain.RecordID]bool)
	poll := func() error {
		msgs, err := s.Transcript(ctx, me, peer, 0)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			fn(m)
		}
		return nil
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := poll(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isFatal(err) {
				return err
			}
			s.log.Warn("poll failed", zap.Stringer("peer", peer), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type entry struct {
	row domain.Row
	rec domain.DirectMessageRecord
}

func (s *Service) keyPair(user domain.Address) (domain.KeyPair, error) {
	kp, ok, err := s.keys.GetKeyPair(user)
	if err != nil {
		return domain.KeyPair{}, err
	}
	if !ok {
		return domain.KeyPair{}, domain.NoKeyPair(user)
	}
	return kp, nil
}

func (s *Service) limit(limit int) int {
	switch {
	case limit == 0:
		return s.cfg.TranscriptLimit
	case limit < 0:
		return 0
	default:
		return limit
	}
}

// decode drops rows that do not match the schema or whose sender field
// disagrees with the slot they were published in.
func (s *Service) decode(rows []domain.Row) []entry {
	out := make([]entry, 0, len(rows))
	for _, row := range rows {
		rec, err := schema.DecodeDirectMessage(row.Data)
		if err != nil {
			s.log.Warn("dropping malformed record",
				zap.Stringer("id", row.ID),
				zap.Stringer("publisher", row.Publisher),
				zap.Error(err),
			)
			continue
		}
		if rec.Sender.Normalize() != row.Publisher.Normalize() {
			s.log.Warn("dropping record with foreign sender",
				zap.Stringer("id", row.ID),
				zap.Stringer("publisher", row.Publisher),
				zap.Stringer("sender", rec.Sender),
			)
			continue
		}
		out = append(out, entry{row: row, rec: rec})
	}
	return out
}

// visible filters entries to the live records of the conversation between me
// and peer, hides primaries that have a self-copy and sorts by timestamp.
func (s *Service) visible(me, peer domain.Address, entries []entry) []entry {
	conv := addressing.ConversationID(me, peer)
	isPrimary := func(e entry) bool { return e.rec.Sender == me && e.rec.Recipient != me }

	var (
		out    []entry
		selfID = make(map[domain.RecordID]bool)
	)
	for _, e := range entries {
		if e.rec.ConversationID != conv || e.rec.IsDeleted {
			continue
		}
		fromMe := e.rec.Sender == me
		if !fromMe && e.rec.Recipient != me {
			continue
		}
		if fromMe && e.rec.Recipient == me && me != peer {
			selfID[e.row.ID] = false
		}
		out = append(out, e)
	}
	if len(selfID) == 0 {
		return sortEntries(out)
	}

	out = slices.DeleteFunc(out, func(e entry) bool {
		if !isPrimary(e) {
			return false
		}
		sid := addressing.SelfCopyID(e.row.ID)
		if _, ok := selfID[sid]; !ok {
			return false
		}
		selfID[sid] = true
		return true
	})

	// Self-copies whose id is not derived from a primary pair by timestamp.
	unpaired := make(map[uint64]int)
	for _, e := range out {
		if paired, ok := selfID[e.row.ID]; ok && !paired {
			unpaired[e.rec.Timestamp]++
		}
	}
	if len(unpaired) > 0 {
		out = slices.DeleteFunc(out, func(e entry) bool {
			if !isPrimary(e) || unpaired[e.rec.Timestamp] == 0 {
				return false
			}
			unpaired[e.rec.Timestamp]--
			return true
		})
	}
	return sortEntries(out)
}

func sortEntries(out []entry) []entry {
	slices.SortStableFunc(out, func(a, b entry) int {
		return cmp.Or(
			cmp.Compare(a.rec.Timestamp, b.rec.Timestamp),
			strings.Compare(a.row.Publisher.String(), b.row.Publisher.String()),
			bytes.Compare(a.row.ID[:], b.row.ID[:]),
		)
	})
	return out
}

func (s *Service) open(ctx context.Context, me, peer domain.Address, kp domain.KeyPair, e entry) domain.DecryptedMessage {
	outgoing := e.rec.Sender == me
	counterparty := e.rec.Sender
	if outgoing {
		counterparty = e.rec.Recipient
	}
	recipient := e.rec.Recipient
	if outgoing {
		recipient = peer
	}

	msg := domain.DecryptedMessage{
		ID:             e.row.ID,
		Publisher:      e.row.Publisher,
		ConversationID: e.rec.ConversationID,
		Sender:         e.rec.Sender,
		Recipient:      recipient,
		Timestamp:      e.rec.Timestamp,
		MessageType:    e.rec.MessageType,
		MediaURL:       e.rec.MediaURL,
		ReplyTo:        e.rec.ReplyTo,
		IsRead:         e.rec.IsRead,
		IsDeleted:      e.rec.IsDeleted,
		Outgoing:       outgoing,
	}
	pt, err := s.decryptor.Open(ctx, e.rec.Content, kp, counterparty)
	if err != nil {
		s.log.Warn("message not decryptable", zap.Stringer("id", e.row.ID), zap.Error(err))
		msg.Plaintext = domain.UndecryptablePlaceholder
		msg.Undecryptable = true
		return msg
	}
	msg.Plaintext = string(pt)
	return msg
}

// ownEntries returns the live, collapsed records of me's slot.
func (s *Service) ownEntries(ctx context.Context, me domain.Address) ([]entry, error) {
	rows, err := s.msgLog.ReadAllByPublisher(ctx, schema.DirectMessageID, me)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", me, err)
	}
	return slices.DeleteFunc(s.decode(logview.Dedupe(rows)), func(e entry) bool {
		return e.rec.IsDeleted
	}), nil
}

func tombstone(e entry) (domain.Record, error) {
	rec := e.rec
	rec.IsDeleted = true
	data, err := schema.EncodeDirectMessage(rec)
	if err != nil {
		return domain.Record{}, fmt.Errorf("encode %s: %w", e.row.ID, err)
	}
	return domain.Record{ID: e.row.ID, SchemaID: schema.DirectMessageID, Data: data}, nil
}

func sealDirect(
	id domain.RecordID,
	sender, recipient domain.Address,
	recipientPub domain.X25519Public,
	ts uint64,
	conv domain.ConversationID,
	plaintext string,
	opts domain.SendOptions,
) (domain.Record, error) {
	env, err := envelope.Seal([]byte(plaintext), recipientPub)
	if err != nil {
		return domain.Record{}, err
	}
	content, err := envelope.Marshal(env)
	if err != nil {
		return domain.Record{}, err
	}
	data, err := schema.EncodeDirectMessage(domain.DirectMessageRecord{
		Timestamp:      ts,
		ConversationID: conv,
		Content:        content,
		Sender:         sender,
		Recipient:      recipient,
		MessageType:    opts.MessageType,
		MediaURL:       opts.MediaURL,
		ReplyTo:        opts.ReplyTo,
	})
	if err != nil {
		return domain.Record{}, err
	}
	return domain.Record{ID: id, SchemaID: schema.DirectMessageID, Data: data}, nil
}

func parsePair(a, b domain.Address) (domain.Address, domain.Address, error) {
	pa, err := domain.ParseAddress(a.String())
	if err != nil {
		return "", "", err
	}
	pb, err := domain.ParseAddress(b.String())
	if err != nil {
		return "", "", err
	}
	return pa, pb, nil
}

func isFatal(err error) bool {
	return errors.Is(err, domain.ErrNoKeyPair) || errors.Is(err, domain.ErrInvalidAddress)
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)
