package enums

import "testing"

func TestParseRetryPolicy(t *testing.T) {
	policy, err := ParseRetryPolicy("fixed")
	if err != nil {
		t.Fatalf("ParseRetryPolicy: %v", err)
	}
	if policy != RetryPolicyFixed {
		t.Fatalf("expected fixed, got %s", policy)
	}

	if _, err := ParseRetryPolicy("linear"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
	if RetryPolicy("linear").IsValid() {
		t.Fatal("unknown policy should not be valid")
	}
}

func TestWebhookEventTypeIsKnown(t *testing.T) {
	known := []WebhookEventType{WebhookIntegrationSuccess, WebhookIntegrationError, WebhookDataUpdated}
	for _, eventType := range known {
		if !eventType.IsKnown() {
			t.Fatalf("%s should be a known event type", eventType)
		}
	}
	if WebhookEventType("record.deleted").IsKnown() {
		t.Fatal("unexpected event type should be unknown")
	}
}

func TestParseNotificationKind(t *testing.T) {
	kind, err := ParseNotificationKind("sync_error")
	if err != nil {
		t.Fatalf("ParseNotificationKind: %v", err)
	}
	if kind != NotificationSyncError {
		t.Fatalf("expected sync_error, got %s", kind)
	}
	if _, err := ParseNotificationKind("sms"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
