package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"quill/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	socketTicketPrefix = "ws_ticket:"

	// SocketTicketTTL bounds how long a ticket waits to be redeemed.
	SocketTicketTTL = 30 * time.Second
)

// SocketTicket is a single-use credential for opening the notification
// socket from clients that cannot send an Authorization header.
type SocketTicket struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int64  `json:"expires_in"`
}

// IssueSocketTicket stores a ticket for actor in Redis.
func (s *AuthService) IssueSocketTicket(ctx context.Context, actor *models.User) (*SocketTicket, error) {
	if actor == nil {
		return nil, models.NewUnauthenticatedError("Authorization required")
	}
	if s.redis == nil {
		return nil, models.NewInternalError(errors.New("socket tickets need redis"))
	}
	ticket := uuid.NewString()
	err := s.redis.Set(ctx, socketTicketPrefix+ticket, strconv.FormatUint(uint64(actor.ID), 10), SocketTicketTTL).Err()
	if err != nil {
		return nil, models.NewInternalError(fmt.Errorf("store socket ticket: %w", err))
	}
	return &SocketTicket{Ticket: ticket, ExpiresIn: int64(SocketTicketTTL / time.Second)}, nil
}

// RedeemSocketTicket consumes ticket and returns its user. Unknown, expired
// and already used tickets are Unauthenticated.
func (s *AuthService) RedeemSocketTicket(ctx context.Context, ticket string) (*models.User, error) {
	invalid := models.NewUnauthenticatedError("Invalid or expired socket ticket")
	if s.redis == nil || ticket == "" {
		return nil, invalid
	}
	raw, err := s.redis.GetDel(ctx, socketTicketPrefix+ticket).Result()
	if errors.Is(err, redis.Nil) {
		return nil, invalid
	}
	if err != nil {
		return nil, models.NewInternalError(fmt.Errorf("redeem socket ticket: %w", err))
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, invalid
	}
	user, err := s.store.Users().GetByID(ctx, uint(id))
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	return user, nil
}
