package enums

import "fmt"

// NotificationType labels in-app notification rows.
type NotificationType string

const (
	NotificationTypeStaffGranted   NotificationType = "staff_granted"
	NotificationTypeTicketReceived NotificationType = "ticket_received"
	NotificationTypeOfferCreated   NotificationType = "offer_created"
	NotificationTypeOfferLinked    NotificationType = "offer_linked"
	NotificationTypeListingSold    NotificationType = "listing_sold"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeStaffGranted,
	NotificationTypeTicketReceived,
	NotificationTypeOfferCreated,
	NotificationTypeOfferLinked,
	NotificationTypeListingSold,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
