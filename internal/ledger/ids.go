package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EntityID addresses an account, token, topic, contract or schedule as
// shard.realm.num.
type EntityID struct {
	Shard int64
	Realm int64
	Num   int64
}

// Aliases used for readability in bodies and results.
type (
	AccountID  = EntityID
	TokenID    = EntityID
	TopicID    = EntityID
	ContractID = EntityID
	ScheduleID = EntityID
)

// ParseEntityID parses "shard.realm.num". A bare number is read as 0.0.num.
func ParseEntityID(s string) (EntityID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return EntityID{}, fmt.Errorf("empty entity id")
	}
	parts := strings.Split(s, ".")
	if len(parts) == 1 {
		parts = []string{"0", "0", parts[0]}
	}
	if len(parts) != 3 {
		return EntityID{}, fmt.Errorf("invalid entity id %q", s)
	}
	var nums [3]int64
	for i, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n < 0 {
			return EntityID{}, fmt.Errorf("invalid entity id %q", s)
		}
		nums[i] = n
	}
	return EntityID{Shard: nums[0], Realm: nums[1], Num: nums[2]}, nil
}

// MustParseEntityID is ParseEntityID for constants and tests.
func MustParseEntityID(s string) EntityID {
	id, err := ParseEntityID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id EntityID) String() string {
	return fmt.Sprintf("%d.%d.%d", id.Shard, id.Realm, id.Num)
}

// IsZero reports whether the id is unset.
func (id EntityID) IsZero() bool {
	return id == EntityID{}
}

// TransactionID is the payer account plus the transaction's valid start.
type TransactionID struct {
	AccountID  AccountID
	ValidStart time.Time
	Scheduled  bool
}

// NewTransactionID generates an id for payer, backdated a few seconds so the
// valid start is not ahead of the nodes' clocks.
func NewTransactionID(payer AccountID, now time.Time) TransactionID {
	return TransactionID{AccountID: payer, ValidStart: now.Add(-5 * time.Second).UTC()}
}

// IsZero reports whether the id is unset.
func (t TransactionID) IsZero() bool {
	return t.AccountID.IsZero() && t.ValidStart.IsZero()
}

// String renders the SDK form, e.g. 0.0.5@1700000000.000000001.
func (t TransactionID) String() string {
	if t.IsZero() {
		return ""
	}
	s := fmt.Sprintf("%s@%d.%09d", t.AccountID, t.ValidStart.Unix(), t.ValidStart.Nanosecond())
	if t.Scheduled {
		s += "?scheduled"
	}
	return s
}

// MirrorString renders the mirror node form, e.g. 0.0.5-1700000000-000000001.
func (t TransactionID) MirrorString() string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s-%d-%09d", t.AccountID, t.ValidStart.Unix(), t.ValidStart.Nanosecond())
}

// ParseTransactionID accepts both the SDK and the mirror node forms.
func ParseTransactionID(s string) (TransactionID, error) {
	raw := strings.TrimSpace(s)
	scheduled := strings.HasSuffix(raw, "?scheduled")
	raw = strings.TrimSuffix(raw, "?scheduled")

	var account, seconds, nanos string
	if at := strings.Index(raw, "@"); at >= 0 {
		account = raw[:at]
		ts := strings.SplitN(raw[at+1:], ".", 2)
		if len(ts) != 2 {
			return TransactionID{}, fmt.Errorf("invalid transaction id %q", s)
		}
		seconds, nanos = ts[0], ts[1]
	} else {
		parts := strings.Split(raw, "-")
		if len(parts) != 3 {
			return TransactionID{}, fmt.Errorf("invalid transaction id %q", s)
		}
		account, seconds, nanos = parts[0], parts[1], parts[2]
	}
	payer, err := ParseEntityID(account)
	if err != nil {
		return TransactionID{}, fmt.Errorf("invalid transaction id %q: %w", s, err)
	}
	sec, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil {
		return TransactionID{}, fmt.Errorf("invalid transaction id %q", s)
	}
	ns, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return TransactionID{}, fmt.Errorf("invalid transaction id %q", s)
	}
	return TransactionID{AccountID: payer, ValidStart: time.Unix(sec, ns).UTC(), Scheduled: scheduled}, nil
}

// MarshalText renders shard.realm.num.
func (id EntityID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *EntityID) UnmarshalText(text []byte) error {
	parsed, err := ParseEntityID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalText renders the SDK form.
func (t TransactionID) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TransactionID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*t = TransactionID{}
		return nil
	}
	parsed, err := ParseTransactionID(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
