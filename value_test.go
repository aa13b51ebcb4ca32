package usd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func atom(s string) Literal { return Literal{Kind: LitAtom, Text: s} }

func tuple(items ...string) Literal {
	l := Literal{Kind: LitTuple}
	for _, it := range items {
		l.Items = append(l.Items, atom(it))
	}
	return l
}

func TestLookupTypeName(t *testing.T) {
	tests := []struct {
		name  string
		kind  Kind
		array bool
		role  bool
	}{
		{"double", KindDouble, false, false},
		{"int[]", KindInt, true, false},
		{"token[]", KindToken, true, false},
		{"point3f[]", KindVec3f, true, true},
		{"texCoord2f[]", KindVec2f, true, true},
		{"color3d", KindVec3d, false, true},
		{"frame4d", KindMatrix4d, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, array, err := LookupTypeName(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, k)
			assert.Equal(t, tt.array, array)
			if !tt.role {
				assert.Equal(t, tt.name, TypeName(k, array))
			}
		})
	}

	_, _, err := LookupTypeName("shader")
	assert.ErrorIs(t, err, ErrType)
}

func TestParseLiteral(t *testing.T) {
	v, err := ParseLiteral(KindDouble, false, atom("2.5"))
	require.NoError(t, err)
	assert.Equal(t, MakeValue(KindDouble, 2.5), v)
	require.NoError(t, v.Validate())

	v, err = ParseLiteral(KindVec3f, true, Literal{Kind: LitList, Items: []Literal{tuple("1", "2", "3"), tuple("4", "5", "6")}})
	require.NoError(t, err)
	assert.Equal(t, MakeArray(KindVec3f, []Vec3f{{1, 2, 3}, {4, 5, 6}}), v)
	assert.Equal(t, 2, v.Len())

	v, err = ParseLiteral(KindInt, true, Literal{Kind: LitList})
	require.NoError(t, err)
	assert.Equal(t, 0, v.Len())
	ints, ok := v.Ints()
	assert.True(t, ok)
	assert.Empty(t, ints)

	v, err = ParseLiteral(KindBool, false, atom("true"))
	require.NoError(t, err)
	b, ok := v.Bool()
	assert.True(t, ok)
	assert.True(t, b)

	_, err = ParseLiteral(KindInt, false, atom("1.5"))
	assert.Error(t, err)
	_, err = ParseLiteral(KindVec3d, false, tuple("1", "2"))
	assert.Error(t, err)
}

func TestValueValidate(t *testing.T) {
	assert.NoError(t, MakeValue(KindFloat, float32(1)).Validate())
	assert.NoError(t, TokenArray("a", "b").Validate())
	assert.NoError(t, MakeValue(KindReferenceListOp, ReferenceListOp{}).Validate())
	assert.NoError(t, MakeValue(KindDictionary, Dictionary{}).Validate())

	assert.ErrorIs(t, MakeValue(KindFloat, 1.0).Validate(), ErrType)
	assert.ErrorIs(t, MakeArray(KindFloat, []float64{1}).Validate(), ErrType)
	assert.ErrorIs(t, MakeArray(KindDictionary, []Dictionary{}).Validate(), ErrType)
	assert.True(t, Value{}.IsZero())
}

func TestValueAccessors(t *testing.T) {
	pts, ok := MakeArray(KindVec3d, []Vec3d{{1, 2, 3}}).Float3s()
	require.True(t, ok)
	assert.Equal(t, []Vec3f{{1, 2, 3}}, pts)

	half := Vec3h{float16.Fromfloat32(0.5), float16.Fromfloat32(1), float16.Fromfloat32(2)}
	pts, ok = MakeArray(KindVec3h, []Vec3h{half}).Float3s()
	require.True(t, ok)
	assert.Equal(t, []Vec3f{{0.5, 1, 2}}, pts)

	_, ok = MakeValue(KindVec3f, Vec3f{1, 2, 3}).Float3s()
	assert.False(t, ok, "scalars are not arrays")

	uvs, ok := MakeArray(KindVec2d, []Vec2d{{0.25, 0.75}}).Float2s()
	require.True(t, ok)
	assert.Equal(t, []Vec2f{{0.25, 0.75}}, uvs)

	ints, ok := MakeArray(KindInt64, []int64{4, -1}).Ints()
	require.True(t, ok)
	assert.Equal(t, []int{4, -1}, ints)

	f, ok := MakeValue(KindHalf, float16.Fromfloat32(1.5)).Float64()
	require.True(t, ok)
	assert.Equal(t, 1.5, f)

	vec, ok := MakeValue(KindVec3f, Vec3f{1, 2, 3}).Vec3d()
	require.True(t, ok)
	assert.Equal(t, Vec3d{1, 2, 3}, vec)

	m, ok := MakeValue(KindMatrix4d, Identity4d()).Matrix4d()
	require.True(t, ok)
	assert.Equal(t, 1.0, m[3][3])

	tok, ok := TokenValue("Y").Token()
	require.True(t, ok)
	assert.Equal(t, "Y", tok)

	refs, ok := MakeValue(KindPayload, Reference{AssetPath: "a.usda"}).References()
	require.True(t, ok)
	assert.Equal(t, []Reference{{AssetPath: "a.usda"}}, refs.Items())
}

func TestListOpItems(t *testing.T) {
	op := ListOp[string]{
		PrependedItems: []string{"a"},
		AddedItems:     []string{"b"},
		AppendedItems:  []string{"c"},
		DeletedItems:   []string{"d"},
	}
	assert.Equal(t, []string{"a", "b", "c"}, op.Items())
	assert.True(t, op.HasDeleted())

	op = ListOp[string]{Explicit: true, ExplicitItems: []string{"x"}, AppendedItems: []string{"ignored"}}
	assert.Equal(t, []string{"x"}, op.Items())
	assert.False(t, op.HasDeleted())
}
