package rfc9111

import (
	"testing"
	"time"
)

func TestMaxAge(t *testing.T) {
	cc := ParseCacheControl([]string{"max-age=60"})
	val, ok := cc.Get("max-age")
	if !ok {
		t.Fatal("Could not get directive")
	}
	if val != "60" {
		t.Fatalf("Value is %s", val)
	}
	if d, ok := cc.MaxAge(); !ok || d != time.Minute {
		t.Fatalf("MaxAge is %v", d)
	}
}

func TestReal(t *testing.T) {
	cc := ParseCacheControl([]string{"public, max-age=0, s-maxage=600"})
	if val, ok := cc.Get("public"); !ok || val != "" {
		t.Fatalf("val: '%s', ok: %v", val, ok)
	}
	if val, ok := cc.Get("max-age"); !ok || val != "0" {
		t.Fatalf("val: '%s', ok: %v", val, ok)
	}
	if val, ok := cc.Get("s-maxage"); !ok || val != "600" {
		t.Fatalf("val: '%s', ok: %v", val, ok)
	}
}

func TestNoSpaceAndQuoted(t *testing.T) {
	cc := ParseCacheControl([]string{`No-Cache,max-age="30"`})
	if !cc.HasDirective("no-cache") {
		t.Fatal("Directive names should be case-insensitive")
	}
	if d, ok := cc.MaxAge(); !ok || d != 30*time.Second {
		t.Fatalf("MaxAge is %v", d)
	}
}

func TestQuotedCommas(t *testing.T) {
	cc := ParseCacheControl([]string{`no-cache="Set-Cookie, Vary", max-age=5`})
	names := cc.FieldNames("no-cache")
	if len(names) != 2 || names[0] != "Set-Cookie" || names[1] != "Vary" {
		t.Fatalf("Field names are %v", names)
	}
	if d, ok := cc.MaxAge(); !ok || d != 5*time.Second {
		t.Fatalf("MaxAge is %v", d)
	}
}
