package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestCanAccessFreePostSkipsSubscriptionCheck(t *testing.T) {
	reader := newFakeReader()
	reader.addPost(1, bob, "QmPK1s3pNYLi9ERiq3BDxKa4XosgWwFRQUydHUtz4YgpqB", true, 0)
	g := NewGate(&staticSource{reader: reader}, nil)

	if !g.CanAccess(context.Background(), 1, alice, bob) {
		t.Fatal("free post must be visible")
	}
	if reader.isSubCalls != 0 {
		t.Fatalf("free post consulted the subscription primitive %d times", reader.isSubCalls)
	}
}

func TestCanAccessPaidPostRequiresSubscription(t *testing.T) {
	reader := newFakeReader()
	reader.addPost(2, bob, "QmPK1s3pNYLi9ERiq3BDxKa4XosgWwFRQUydHUtz4YgpqB", false, 0)
	g := NewGate(&staticSource{reader: reader}, nil)

	if g.CanAccess(context.Background(), 2, alice, bob) {
		t.Fatal("paid post without subscription must be denied")
	}
	reader.subscribed[pairKey(alice, bob)] = true
	if !g.CanAccess(context.Background(), 2, alice, bob) {
		t.Fatal("paid post with active subscription must be visible")
	}
}

func TestCanAccessMissingPostDenied(t *testing.T) {
	g := NewGate(&staticSource{reader: newFakeReader()}, nil)
	if g.CanAccess(context.Background(), 42, alice, bob) {
		t.Fatal("nonexistent post must be denied")
	}
}

func TestCanAccessFailsClosed(t *testing.T) {
	g := NewGate(&staticSource{err: errLedgerDown}, nil)
	if g.CanAccess(context.Background(), 1, alice, bob) {
		t.Fatal("unavailable ledger must deny access")
	}

	reader := newFakeReader()
	reader.addPost(3, bob, "QmPK1s3pNYLi9ERiq3BDxKa4XosgWwFRQUydHUtz4YgpqB", false, 0)
	reader.isSubErr = errors.New("rpc timeout")
	g = NewGate(&staticSource{reader: reader}, nil)
	if g.CanAccess(context.Background(), 3, alice, bob) {
		t.Fatal("failed subscription check must deny access")
	}
}
