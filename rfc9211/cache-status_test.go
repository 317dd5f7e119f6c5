package rfc9211

import (
	"testing"
	"time"
)

func TestHit(t *testing.T) {
	cs := New("Fragment-Gateway")
	cs.Hit()
	cs.TimeToLive(376 * time.Second)
	if s := cs.String(); s != "Fragment-Gateway; hit; ttl=376" {
		t.Fatalf("Cache status is %s", s)
	}
}

func TestStaleValidated(t *testing.T) {
	cs := New("Fragment-Gateway")
	cs.Forward(FwdReasonStale)
	cs.ForwardStatus(304)
	if s := cs.String(); s != "Fragment-Gateway; fwd=stale; fwd-status=304" {
		t.Fatalf("Cache status is %s", s)
	}
}

func TestMissStored(t *testing.T) {
	cs := New("Fragment-Gateway")
	cs.Forward(FwdReasonUriMiss)
	cs.Stored()
	if s := cs.String(); s != "Fragment-Gateway; fwd=uri-miss; stored" {
		t.Fatalf("Cache status is %s", s)
	}
}
