package invite

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/pongserver/game"
	"github.com/wfunc/pongserver/logger"
	"github.com/wfunc/pongserver/timer"
)

var (
	ErrInvalidInvite  = errors.New("invalid invite")
	ErrInviteNotFound = errors.New("invite not found")
)

// Status of an invite. Consumed invites are removed from the broker,
// so only pending ones are ever observable.
type Status string

const (
	StatusPending  Status = "pending"
	StatusConsumed Status = "consumed"
)

// Invite is a short-lived match proposal between two identities.
type Invite struct {
	ID              string          `json:"id"`
	SenderSessionID string          `json:"-"`
	SenderName      string          `json:"senderDisplayName"`
	ReceiverName    string          `json:"receiverDisplayName"`
	Difficulty      game.Difficulty `json:"difficulty"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Broker owns all pending invites. At most one pending invite per
// sender and per receiver; senders observe a cooldown between sends.
type Broker struct {
	invites  map[string]*Invite
	byParty  map[string]*Invite   // lowercased display name -> pending invite
	lastSent map[string]time.Time // lowercased sender name -> last create
	ttl      time.Duration
	cooldown time.Duration
	sweepID  int64
	timers   *timer.Manager
	mutex    sync.Mutex
}

// NewBroker wires a broker with its TTL sweep scheduled on the shared
// timer manager.
func NewBroker(ttl, cooldown time.Duration, timers *timer.Manager) *Broker {
	b := &Broker{
		invites:  make(map[string]*Invite),
		byParty:  make(map[string]*Invite),
		lastSent: make(map[string]time.Time),
		ttl:      ttl,
		cooldown: cooldown,
		timers:   timers,
	}
	if timers != nil {
		b.sweepID = timers.Schedule(time.Minute, time.Minute, b.ExpireStale)
	}
	return b
}

// Stop cancels the TTL sweep.
func (b *Broker) Stop() {
	if b.timers != nil {
		b.timers.Remove(b.sweepID)
	}
}

// Create validates and registers a new pending invite.
func (b *Broker) Create(senderSessionID string, senderName, receiverName string, difficulty game.Difficulty) (*Invite, error) {
	if !game.ValidDifficulty(difficulty) {
		return nil, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidInvite, difficulty)
	}
	senderKey := strings.ToLower(senderName)
	receiverKey := strings.ToLower(receiverName)
	if senderKey == receiverKey {
		return nil, fmt.Errorf("%w: cannot invite yourself", ErrInvalidInvite)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if last, ok := b.lastSent[senderKey]; ok && time.Since(last) < b.cooldown {
		return nil, fmt.Errorf("%w: cooldown active, retry later", ErrInvalidInvite)
	}
	if _, ok := b.byParty[senderKey]; ok {
		return nil, fmt.Errorf("%w: sender already has a pending invite", ErrInvalidInvite)
	}
	if _, ok := b.byParty[receiverKey]; ok {
		return nil, fmt.Errorf("%w: receiver already has a pending invite", ErrInvalidInvite)
	}

	inv := &Invite{
		ID:              uuid.New().String(),
		SenderSessionID: senderSessionID,
		SenderName:      senderName,
		ReceiverName:    receiverName,
		Difficulty:      difficulty,
		Status:          StatusPending,
		CreatedAt:       time.Now(),
	}
	b.invites[inv.ID] = inv
	b.byParty[senderKey] = inv
	b.byParty[receiverKey] = inv
	b.lastSent[senderKey] = inv.CreatedAt
	return inv, nil
}

// Consume takes a pending invite out of the broker on accept or
// decline. The returned invite carries everything the caller needs to
// materialize a room or notify the sender.
func (b *Broker) Consume(inviteID string) (*Invite, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	inv, ok := b.invites[inviteID]
	if !ok {
		return nil, ErrInviteNotFound
	}
	b.removeLocked(inv)
	inv.Status = StatusConsumed
	return inv, nil
}

// Get returns a pending invite without consuming it.
func (b *Broker) Get(inviteID string) (*Invite, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	inv, ok := b.invites[inviteID]
	return inv, ok
}

// PendingCount reports live invites, for metrics.
func (b *Broker) PendingCount() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.invites)
}

// ExpireStale sweeps invites past their TTL.
func (b *Broker) ExpireStale() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	cutoff := time.Now().Add(-b.ttl)
	for _, inv := range b.invites {
		if inv.CreatedAt.Before(cutoff) {
			b.removeLocked(inv)
			if logger.Log != nil {
				logger.Log.Infof("Invite %s from %s to %s expired", inv.ID, inv.SenderName, inv.ReceiverName)
			}
		}
	}
}

func (b *Broker) removeLocked(inv *Invite) {
	delete(b.invites, inv.ID)
	delete(b.byParty, strings.ToLower(inv.SenderName))
	delete(b.byParty, strings.ToLower(inv.ReceiverName))
}
