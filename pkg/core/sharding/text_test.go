// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sharding_test

import (
	"encoding/json"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/hlosharding/pkg/core/shapes"
	. "github.com/gomlx/hlosharding/pkg/core/sharding"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	testCases := []struct {
		sharding Sharding
		want     string
	}{
		{Replicate(), "{replicated}"},
		{AssignDevice(Real(3)), "{maximal device=3}"},
		{AssignDevice(Host), "{maximal device=host}"},
		{AssignDevice(Unassigned), "{maximal device=unassigned}"},
		{tiled([]int{2, 2}, []int{2, 1}, 1, 0), "{f32[2,2] devices=[2,1]1,0}"},
		{Tile1D(shapes.Make(dtypes.BFloat16, 10), 4), "{bf16[3] devices=[4]0,1,2,3}"},
		{Tile1D(shapes.Make(dtypes.F8E4M3FN, 4), 2), "{f8e4m3fn[2] devices=[2]0,1}"},
		{Tile1D(shapes.Make(dtypes.S4, 8), 2), "{s4[4] devices=[2]0,1}"},
		{Tile1D(shapes.Make(dtypes.Complex128, 3), 3), "{c128[1] devices=[3]0,1,2}"},
		{nestedSharding(t), "{{f32[2] devices=[2]0,1},{maximal device=1},{replicated},{f32[3,2] devices=[2,1]1,0}}"},
	}
	for _, tc := range testCases {
		got := tc.sharding.String()
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("String() mismatch (-want +got):\n%s", diff)
		}
		parsed, err := Parse(got)
		require.NoError(t, err, "parsing %q", got)
		assert.True(t, parsed.Equal(tc.sharding), "Parse(%q) returned %s", got, parsed)
	}
}

func TestParseErrors(t *testing.T) {
	for _, text := range []string{
		"",
		"replicated",
		"{replicated",
		"{replicated}x",
		"{replicated} ",
		"{maximal device=}",
		"{maximal device=-1}",
		"{maximal device=3",
		"{f32[2] devices=[2]0}",
		"{f32[2] devices=[2]0,a}",
		"{f32[2] devices=[2]0,-1}",
		"{f32[2] devices=[2]0,1",
		"{f32[2] devices=[20,1}",
		"{f32[2,2] devices=[4294967296,4294967296]}",
		"{f32[2,2] devices=[9223372036854775807,2]0,1}",
		"{f32[2] devices=[99999999999999999999]0}",
		"{q32[2] devices=[2]0,1}",
		"{(f32[2]) devices=[1]0}",
		"{tiled}",
		"{}",
		"{{replicated}",
		"{{replicated};{replicated}}",
		"{{replicated},{{replicated}}}",
	} {
		_, err := Parse(text)
		assert.Error(t, err, "Parse(%q) should have failed", text)
	}
}

func TestTextMarshaling(t *testing.T) {
	type config struct {
		Weights Sharding `json:"weights"`
		Bias    Sharding `json:"bias"`
	}
	c := config{Weights: tiled([]int{2, 2}, []int{2, 1}, 1, 0), Bias: AssignDevice(Host)}
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `{"weights":"{f32[2,2] devices=[2,1]1,0}","bias":"{maximal device=host}"}`, string(data))

	var got config
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, got.Weights.Equal(c.Weights))
	assert.True(t, got.Bias.Equal(c.Bias))

	require.Error(t, json.Unmarshal([]byte(`{"weights":"{bad}"}`), &got))
}
