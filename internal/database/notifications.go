package database

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mexc-volume-bot/internal/types"
)

// InsertNotification journals a fired alert.
func InsertNotification(n types.Notification) error {
	query := `
	INSERT INTO notifications (chat_id, alert_id, symbol, interval, threshold, volume)
	VALUES (?, ?, ?, ?, ?, ?);`

	_, err := DB.Exec(query, n.ChatID, n.AlertID, n.Symbol, string(n.Interval), n.Threshold, n.Volume)
	if err != nil {
		return errors.Wrap(err, "failed to insert notification")
	}

	log.WithFields(log.Fields{
		"chat_id":  n.ChatID,
		"alert_id": n.AlertID,
		"symbol":   n.Symbol,
		"volume":   n.Volume,
	}).Debug("notification journaled")
	return nil
}

// GetNotificationsByChatID returns the latest notifications of a chat,
// newest first.
func GetNotificationsByChatID(chatID int64, limit int) ([]types.Notification, error) {
	query := `
	SELECT id, chat_id, alert_id, symbol, interval, threshold, volume, created_at
	FROM notifications
	WHERE chat_id = ?
	ORDER BY id DESC
	LIMIT ?;`

	rows, err := DB.Query(query, chatID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query notifications for chat ID %d", chatID)
	}
	defer rows.Close()

	var notifications []types.Notification
	for rows.Next() {
		var (
			n        types.Notification
			interval string
		)
		if err := rows.Scan(&n.ID, &n.ChatID, &n.AlertID, &n.Symbol, &interval, &n.Threshold, &n.Volume, &n.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		n.Interval = types.Interval(interval)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// DeleteNotificationsByChatID clears the journal of a chat.
func DeleteNotificationsByChatID(chatID int64) error {
	if _, err := DB.Exec(`DELETE FROM notifications WHERE chat_id = ?;`, chatID); err != nil {
		return errors.Wrapf(err, "failed to delete notifications for chat ID %d", chatID)
	}
	return nil
}

// NotificationLog exposes the journal functions as a value that can be
// handed to the monitor and the command router.
type NotificationLog struct{}

func (NotificationLog) RecordNotification(n types.Notification) error {
	return InsertNotification(n)
}

func (NotificationLog) RecentNotifications(chatID int64, limit int) ([]types.Notification, error) {
	return GetNotificationsByChatID(chatID, limit)
}

func (NotificationLog) ClearNotifications(chatID int64) error {
	return DeleteNotificationsByChatID(chatID)
}
