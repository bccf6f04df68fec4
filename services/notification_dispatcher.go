package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ecoStreakAPI/internal/types/notification"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// deliveryRecorder persists the outcome of a dispatch.
type deliveryRecorder interface {
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// NotificationDispatcher delivers stored notifications through a fixed worker pool.
type NotificationDispatcher struct {
	recorder     deliveryRecorder
	pushProvider PushNotificationProvider
	logger       *zap.Logger
	workers      int
	jobQueue     chan *DispatchJob
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	mu           sync.RWMutex
}

type DispatchJob struct {
	Notification *notification.Notification
	Tokens       []notification.DeviceToken
}

func NewNotificationDispatcher(recorder deliveryRecorder, workers int, logger *zap.Logger) *NotificationDispatcher {
	if workers <= 0 {
		workers = 5
	}
	d := &NotificationDispatcher{
		recorder: recorder,
		logger:   logger,
		workers:  workers,
		jobQueue: make(chan *DispatchJob, 100),
		stopChan: make(chan struct{}),
	}
	d.startWorkers()
	return d
}

// Allow injecting the real FCM provider from main.go
func (d *NotificationDispatcher) SetPushProvider(provider PushNotificationProvider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pushProvider = provider
}

func (d *NotificationDispatcher) provider() PushNotificationProvider {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pushProvider
}

func (d *NotificationDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *NotificationDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobQueue:
			d.processJob(job)
		case <-d.stopChan:
			// drain what is already queued
			for {
				select {
				case job := <-d.jobQueue:
					d.processJob(job)
				default:
					return
				}
			}
		}
	}
}

func (d *NotificationDispatcher) processJob(job *DispatchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	notif := job.Notification
	provider := d.provider()

	if len(job.Tokens) > 0 && provider != nil {
		if err := provider.SendPush(ctx, job.Tokens, notif.Title, notif.Body, notif.Data); err != nil {
			notificationsDispatched.WithLabelValues(string(notification.StatusFailed)).Inc()
			d.logger.Warn("push failed",
				zap.String("notification_id", notif.ID.String()),
				zap.String("user_id", notif.UserID.String()),
				zap.Error(err),
			)
			if err := d.recorder.MarkFailed(ctx, notif.ID, err.Error()); err != nil {
				d.logger.Error("failed to mark notification failed", zap.String("notification_id", notif.ID.String()), zap.Error(err))
			}
			return
		}
	} else {
		d.logger.Debug("skipping push",
			zap.String("notification_id", notif.ID.String()),
			zap.Int("tokens", len(job.Tokens)),
			zap.Bool("provider_set", provider != nil),
		)
	}

	notificationsDispatched.WithLabelValues(string(notification.StatusSent)).Inc()
	if err := d.recorder.MarkSent(ctx, notif.ID); err != nil {
		d.logger.Error("failed to mark notification sent", zap.String("notification_id", notif.ID.String()), zap.Error(err))
	}
}

// Dispatch queues a notification. It gives up after five seconds when the queue stays full.
func (d *NotificationDispatcher) Dispatch(notif *notification.Notification, tokens []notification.DeviceToken) bool {
	job := &DispatchJob{Notification: notif, Tokens: tokens}

	select {
	case <-d.stopChan:
		return false
	default:
	}

	select {
	case d.jobQueue <- job:
		return true
	case <-time.After(5 * time.Second):
		d.logger.Warn("notification queue full", zap.String("notification_id", notif.ID.String()))
		return false
	}
}

// Stop the dispatcher gracefully
func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("stopping notification dispatcher")
		close(d.stopChan)
		d.wg.Wait()
		d.logger.Info("notification dispatcher stopped")
	})
}
