package openpayments

import (
	"encoding/json"
	"fmt"
	"sort"
)

// AccessItemType is the resource a grant applies to.
type AccessItemType uint8

const (
	AccessIncomingPayment AccessItemType = iota + 1
	AccessOutgoingPayment
	AccessQuote
)

var accessItemTypeNames = map[AccessItemType]string{
	AccessIncomingPayment: "incoming-payment",
	AccessOutgoingPayment: "outgoing-payment",
	AccessQuote:           "quote",
}

var accessItemTypeValues = invert(accessItemTypeNames)

// ParseAccessItemType maps a wire value to its AccessItemType.
func ParseAccessItemType(s string) (AccessItemType, error) {
	if t, ok := accessItemTypeValues[s]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: access type %q", ErrUnknownEnumValue, s)
}

func (t AccessItemType) String() string {
	if s, ok := accessItemTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("AccessItemType(%d)", uint8(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t AccessItemType) MarshalText() ([]byte, error) {
	s, ok := accessItemTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("%w: access type %d", ErrUnknownEnumValue, uint8(t))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *AccessItemType) UnmarshalText(b []byte) error {
	v, err := ParseAccessItemType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// AccessAction is an operation a grant permits.
type AccessAction uint8

const (
	ActionRead AccessAction = iota + 1
	ActionComplete
	ActionCreate
	ActionReadAll
	ActionList
	ActionListAll
)

var accessActionNames = map[AccessAction]string{
	ActionRead:     "read",
	ActionComplete: "complete",
	ActionCreate:   "create",
	ActionReadAll:  "read-all",
	ActionList:     "list",
	ActionListAll:  "list-all",
}

var accessActionValues = invert(accessActionNames)

// ParseAccessAction maps a wire value to its AccessAction.
func ParseAccessAction(s string) (AccessAction, error) {
	if a, ok := accessActionValues[s]; ok {
		return a, nil
	}
	return 0, fmt.Errorf("%w: access action %q", ErrUnknownEnumValue, s)
}

func (a AccessAction) String() string {
	if s, ok := accessActionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("AccessAction(%d)", uint8(a))
}

// MarshalText implements encoding.TextMarshaler.
func (a AccessAction) MarshalText() ([]byte, error) {
	s, ok := accessActionNames[a]
	if !ok {
		return nil, fmt.Errorf("%w: access action %d", ErrUnknownEnumValue, uint8(a))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AccessAction) UnmarshalText(b []byte) error {
	v, err := ParseAccessAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ActionSet is a set of actions. It always serializes as a JSON array sorted
// by wire name, so equal sets produce identical bytes.
type ActionSet map[AccessAction]struct{}

// NewActionSet returns a set holding actions.
func NewActionSet(actions ...AccessAction) ActionSet {
	s := make(ActionSet, len(actions))
	for _, a := range actions {
		s[a] = struct{}{}
	}
	return s
}

// Has reports whether a is in the set.
func (s ActionSet) Has(a AccessAction) bool {
	_, ok := s[a]
	return ok
}

// Names returns the sorted wire names of the set.
func (s ActionSet) Names() ([]string, error) {
	names := make([]string, 0, len(s))
	for a := range s {
		b, err := a.MarshalText()
		if err != nil {
			return nil, err
		}
		names = append(names, string(b))
	}
	sort.Strings(names)
	return names, nil
}

// MarshalJSON implements json.Marshaler.
func (s ActionSet) MarshalJSON() ([]byte, error) {
	names, err := s.Names()
	if err != nil {
		return nil, err
	}
	return json.Marshal(names)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ActionSet) UnmarshalJSON(b []byte) error {
	var actions []AccessAction
	if err := json.Unmarshal(b, &actions); err != nil {
		return err
	}
	*s = NewActionSet(actions...)
	return nil
}

// NewIncomingPaymentGrantRequest asks for a non-interactive incoming-payment grant.
func NewIncomingPaymentGrantRequest(client WalletAddress) GrantAccessRequest {
	return GrantAccessRequest{
		Client: client,
		AccessToken: AccessToken{
			Access: []AccessItem{{
				Type:    AccessIncomingPayment,
				Actions: NewActionSet(ActionRead, ActionComplete, ActionCreate),
			}},
		},
	}
}

// NewQuoteGrantRequest asks for a non-interactive quote grant.
func NewQuoteGrantRequest(client WalletAddress) GrantAccessRequest {
	return GrantAccessRequest{
		Client: client,
		AccessToken: AccessToken{
			Access: []AccessItem{{
				Type:    AccessQuote,
				Actions: NewActionSet(ActionRead, ActionCreate),
			}},
		},
	}
}

// NewOutgoingPaymentGrantRequest asks for an interactive outgoing-payment grant
// limited to debit. The user is redirected to returnURL with nonce on finish.
func NewOutgoingPaymentGrantRequest(client, sender WalletAddress, debit *InterledgerAmount, returnURL, nonce string) GrantAccessRequest {
	return GrantAccessRequest{
		Client: client,
		AccessToken: AccessToken{
			Access: []AccessItem{{
				Type:       AccessOutgoingPayment,
				Actions:    NewActionSet(ActionRead, ActionCreate),
				Identifier: sender.String(),
				Limits:     &Limits{DebitAmount: debit},
			}},
		},
		Interact: &AccessInteract{
			Start: []string{"redirect"},
			Finish: &InteractFinish{
				Method: "redirect",
				URI:    returnURL,
				Nonce:  nonce,
			},
		},
	}
}

func invert[K comparable, V comparable](m map[K]V) map[V]K {
	out := make(map[V]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}
