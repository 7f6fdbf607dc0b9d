package drm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opentdf/drmpolicy/pkg/media"
)

type Operation int

const (
	None Operation = iota
	ListAll
	ListKeys
	ListPolicies
	ListOptions
	RemoveKey
	RemovePolicy
	RemoveOption
	CreateDRMPolicy
	DeleteDRMPolicy
	ApplyDRMPolicyToAsset
	RemoveDRMPolicyFromAsset
)

var operations = []struct {
	op     Operation
	name   string
	legacy string
}{
	{ListAll, "list-all", "--listall"},
	{ListKeys, "list-keys", "--listcontentkey"},
	{ListPolicies, "list-policies", "--listauthpolicy"},
	{ListOptions, "list-options", "--listauthpolicyoption"},
	{RemoveKey, "remove-key", "--removecontentkey"},
	{RemovePolicy, "remove-policy", "--removeauthpolicy"},
	{RemoveOption, "remove-option", "--removeauthpolicyoption"},
	{CreateDRMPolicy, "create-drm-policy", "--createdrmauthpolicy"},
	{DeleteDRMPolicy, "delete-drm-policy", "--deletedrmauthpolicy"},
	{ApplyDRMPolicyToAsset, "apply-drm-policy-to-asset", "--applydrmauthpolicytoasset"},
	{RemoveDRMPolicyFromAsset, "remove-drm-policy-from-asset", "--deletedrmauthpolicyfromasset"},
}

func (o Operation) String() string {
	for _, x := range operations {
		if x.op == o {
			return x.name
		}
	}
	return "none"
}

// RequiresIDs reports whether the operation works on a list of ids.
func (o Operation) RequiresIDs() bool {
	switch o {
	case RemoveKey, RemovePolicy, RemoveOption, ApplyDRMPolicyToAsset, RemoveDRMPolicyFromAsset:
		return true
	}
	return false
}

// ParseOperation accepts an operation name or one of the legacy flag
// spellings such as --listall. Case is ignored.
func ParseOperation(s string) (Operation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, x := range operations {
		if s == x.name || s == x.legacy {
			return x.op, nil
		}
	}
	return None, errors.Join(media.ErrConfiguration, fmt.Errorf("unknown operation %q", s))
}

// Operations lists every operation name.
func Operations() []string {
	names := make([]string, len(operations))
	for i, x := range operations {
		names[i] = x.name
	}
	return names
}

// ParseArgs splits a legacy command line: an operation flag followed by
// ids.
func ParseArgs(args []string) (Operation, []string, error) {
	if len(args) == 0 {
		return None, nil, errors.Join(media.ErrConfiguration, errors.New("no operation given"))
	}
	op, err := ParseOperation(args[0])
	if err != nil {
		return None, nil, err
	}
	return op, args[1:], nil
}
