package defaultresponse

import (
	"testing"

	"github.com/seu-repo/ocpp-csms/internal/ocpp16"
)

func TestNew_HasWellFormedDefaultsForAllFiveActions(t *testing.T) {
	table := New()
	actions := []string{"Authorize", "DataTransfer", "SignCertificate", "StartTransaction", "StopTransaction"}
	for _, action := range actions {
		resp, ok := table.ResponseFor(action)
		if !ok {
			t.Errorf("expected %s to be a recognized default-response action", action)
		}
		if resp == nil {
			t.Errorf("expected %s to have a well-formed default, got nil", action)
		}
	}
}

func TestResponseFor_UnknownAction(t *testing.T) {
	table := New()
	_, ok := table.ResponseFor("BootNotification")
	if ok {
		t.Error("expected BootNotification to not be a default-response action")
	}
}

func TestApply_OverwritesPresentFieldsOnly(t *testing.T) {
	table := New()
	blocked := &ocpp16.AuthorizeResponse{IDTagInfo: ocpp16.IDTagInfo{Status: "Blocked"}}

	table.Apply(Envelope{Authorize: blocked})

	if table.Authorize.IDTagInfo.Status != "Blocked" {
		t.Errorf("expected Authorize to be overwritten to 'Blocked', got '%s'", table.Authorize.IDTagInfo.Status)
	}
	if table.DataTransfer.Status != "Accepted" {
		t.Errorf("expected DataTransfer to remain unchanged at 'Accepted', got '%s'", table.DataTransfer.Status)
	}
}

func TestBuildEnvelope_Authorize(t *testing.T) {
	env, err := BuildEnvelope("Authorize", []byte(`{"idTagInfo":{"status":"Blocked"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Authorize == nil || env.Authorize.IDTagInfo.Status != "Blocked" {
		t.Errorf("expected Authorize field set to Blocked, got %+v", env)
	}
	if env.DataTransfer != nil {
		t.Error("expected only the Authorize field to be set")
	}
}

func TestBuildEnvelope_UnknownAction(t *testing.T) {
	_, err := BuildEnvelope("BootNotification", []byte(`{}`))
	if err == nil {
		t.Error("expected an error for a non-overridable action")
	}
}

func TestBuildEnvelope_MalformedPayload(t *testing.T) {
	_, err := BuildEnvelope("Authorize", []byte(`not json`))
	if err == nil {
		t.Error("expected an error for malformed payload")
	}
}

func TestIsOverridableAction(t *testing.T) {
	for _, action := range []string{"Authorize", "DataTransfer", "SignCertificate", "StartTransaction", "StopTransaction"} {
		if !IsOverridableAction(action) {
			t.Errorf("expected %s to be overridable", action)
		}
	}
	if IsOverridableAction("Heartbeat") {
		t.Error("expected Heartbeat to not be overridable")
	}
}

func TestApply_EmptyEnvelopeLeavesTableUnchanged(t *testing.T) {
	table := New()
	original := *table.Authorize

	table.Apply(Envelope{})

	if *table.Authorize != original {
		t.Error("expected table to remain unchanged when envelope has no fields set")
	}
}
