// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package groups

import (
	"errors"
	"testing"
)

func TestParseProfile(t *testing.T) {
	tests := []struct {
		input   string
		want    AgentProfile
		wantErr bool
	}{
		{"readonly", ProfileReadOnly, false},
		{"read-only", ProfileReadOnly, false},
		{"RO", ProfileReadOnly, false},
		{"standard", ProfileStandard, false},
		{"default", ProfileStandard, false},
		{"", ProfileStandard, false},
		{"  full  ", ProfileFull, false},
		{"all", ProfileFull, false},
		{"admin", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProfile(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProfile(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownProfile) {
				t.Errorf("error should wrap ErrUnknownProfile, got %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseProfile(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseToolGroup(t *testing.T) {
	tests := []struct {
		input   string
		want    ToolGroup
		wantErr bool
	}{
		{"read", GroupRead, false},
		{"readonly", GroupRead, false},
		{"write", GroupWrite, false},
		{"edit", GroupWrite, false},
		{"manage", GroupManage, false},
		{"fileops", GroupManage, false},
		{"network", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseToolGroup(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseToolGroup(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownGroup) {
				t.Errorf("error should wrap ErrUnknownGroup, got %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseToolGroup(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestProfileGroups(t *testing.T) {
	if got := ProfileReadOnly.Groups(); len(got) != 1 || got[0] != GroupRead {
		t.Errorf("ProfileReadOnly.Groups() = %v", got)
	}
	if got := ProfileStandard.Groups(); len(got) != 2 {
		t.Errorf("ProfileStandard.Groups() = %v", got)
	}
	if got := ProfileFull.Groups(); len(got) != len(AllGroups()) {
		t.Errorf("ProfileFull should expose every group, got %v", got)
	}
	if got := AgentProfile("bogus").Groups(); got != nil {
		t.Errorf("unknown profile should expose nothing, got %v", got)
	}
}

func TestProfileIncludes(t *testing.T) {
	tests := []struct {
		profile AgentProfile
		group   ToolGroup
		want    bool
	}{
		{ProfileReadOnly, GroupRead, true},
		{ProfileReadOnly, GroupWrite, false},
		{ProfileReadOnly, GroupManage, false},
		{ProfileStandard, GroupWrite, true},
		{ProfileStandard, GroupManage, false},
		{ProfileFull, GroupManage, true},
	}

	for _, tt := range tests {
		if got := tt.profile.Includes(tt.group); got != tt.want {
			t.Errorf("%s.Includes(%s) = %v, want %v", tt.profile, tt.group, got, tt.want)
		}
	}
}

func TestGroupsCopyIsIndependent(t *testing.T) {
	gs := ProfileFull.Groups()
	gs[0] = "tampered"

	if ProfileFull.Groups()[0] != GroupRead {
		t.Error("Groups() must return a copy, not the backing slice")
	}
}
