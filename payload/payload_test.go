package payload

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func allOnes() uint256.Int {
	var x uint256.Int
	x.SetAllOne()

	return x
}

func ones32() Recipient {
	var r Recipient
	for i := range r {
		r[i] = 0xff
	}

	return r
}

// TestRoundTrip asserts that decode(encode(x)) == x for both layouts and both
// payload variants, including boundary values.
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	maxAddr := common.BytesToAddress(bytes.Repeat([]byte{0xff}, 20))

	tests := []struct {
		name    string
		version Version
		payload *Payload
	}{
		{
			name:    "recipient only zero",
			version: V3,
			payload: &Payload{},
		},
		{
			name:    "recipient only all ones",
			version: V2,
			payload: &Payload{Recipient: ones32()},
		},
		{
			name:    "v3 zero values",
			version: V3,
			payload: &Payload{
				Swap: &Instructions{
					TradeMode: ExactIn,
					LegKind:   LegKindNative,
				},
			},
		},
		{
			name:    "v3 maximum values",
			version: V3,
			payload: &Payload{
				Recipient: ones32(),
				Swap: &Instructions{
					Amount:    allOnes(),
					AssetOut:  maxAddr,
					PoolAsset: maxAddr,
					Deadline:  allOnes(),
					PoolFee:   MaxPoolFee,
					TradeMode: ExactOut,
					LegKind:   LegKindToken,
				},
			},
		},
		{
			name:    "v3 typical",
			version: V3,
			payload: &Payload{
				Recipient: RecipientFromAddress(
					common.HexToAddress("0x1234"),
				),
				Swap: &Instructions{
					Amount:    *uint256.NewInt(400_000),
					AssetOut:  common.HexToAddress("0xaa"),
					PoolAsset: common.HexToAddress("0xbb"),
					Deadline:  *uint256.NewInt(1700000000),
					PoolFee:   3000,
					TradeMode: ExactIn,
					LegKind:   LegKindNative,
				},
			},
		},
		{
			name:    "v2 maximum values",
			version: V2,
			payload: &Payload{
				Recipient: ones32(),
				Swap: &Instructions{
					Amount:    allOnes(),
					AssetOut:  maxAddr,
					PoolAsset: maxAddr,
					Deadline:  allOnes(),
					PoolFee:   MaxPoolFee,
					TradeMode: ExactOut,
				},
			},
		},
	}

	for _, test := range tests {
		test := test

		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			codec, err := NewCodec(test.version)
			require.NoError(t, err)

			raw, err := codec.Encode(test.payload)
			require.NoError(t, err)

			wantLen := RecipientOnlyLength
			if test.payload.Swap != nil {
				wantLen = codec.FullLength()
			}
			require.Len(t, raw, wantLen)

			decoded, err := codec.Decode(raw)
			require.NoError(t, err)
			require.Equal(t, test.payload, decoded)
		})
	}
}

// TestLayout pins the byte offsets of every field of the full layout.
func TestLayout(t *testing.T) {
	t.Parallel()

	codec, err := NewCodec(V3)
	require.NoError(t, err)

	p := &Payload{
		Recipient: Recipient{31: 0x02},
		Swap: &Instructions{
			Amount:    *uint256.NewInt(1),
			AssetOut:  common.Address{19: 0x03},
			PoolAsset: common.Address{19: 0x04},
			Deadline:  *uint256.NewInt(5),
			PoolFee:   0x010203,
			TradeMode: ExactOut,
			LegKind:   LegKindToken,
		},
	}

	raw, err := codec.Encode(p)
	require.NoError(t, err)
	require.Len(t, raw, FullLengthV3)
	require.Equal(t, 141, FullLengthV3)
	require.Equal(t, 140, FullLengthV2)

	require.Equal(t, byte(0x01), raw[31])
	require.Equal(t, byte(0x02), raw[63])
	require.Equal(t, byte(0x03), raw[83])
	require.Equal(t, byte(0x04), raw[103])
	require.Equal(t, byte(0x05), raw[135])
	require.Equal(t, []byte{0x01, 0x02, 0x03}, raw[136:139])
	require.Equal(t, byte(ExactOut), raw[139])
	require.Equal(t, byte(LegKindToken), raw[140])
}

// TestLengthRejection asserts that every length other than the two
// recognized ones is rejected.
func TestLengthRejection(t *testing.T) {
	t.Parallel()

	for _, version := range []Version{V2, V3} {
		codec, err := NewCodec(version)
		require.NoError(t, err)

		for n := 0; n <= FullLengthV3+8; n++ {
			if n == RecipientOnlyLength || n == codec.FullLength() {
				continue
			}

			_, err := codec.Decode(make([]byte, n))
			require.ErrorIs(t, err, ErrMalformedPayload,
				"version %v length %d", version, n)
		}
	}
}

// TestDecodeKeepsRawTags makes sure the codec does not interpret the tags,
// leaving the semantic checks to the caller.
func TestDecodeKeepsRawTags(t *testing.T) {
	t.Parallel()

	codec, err := NewCodec(V3)
	require.NoError(t, err)

	raw := make([]byte, FullLengthV3)
	raw[139] = 0x7f
	raw[140] = 0x09

	p, err := codec.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, TradeMode(0x7f), p.Swap.TradeMode)
	require.Equal(t, LegKind(0x09), p.Swap.LegKind)
}

// TestEncodeUnrepresentable asserts the values that do not fit the layout.
func TestEncodeUnrepresentable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		version Version
		swap    Instructions
	}{
		{
			name:    "pool fee too wide",
			version: V3,
			swap: Instructions{
				PoolFee:   MaxPoolFee + 1,
				TradeMode: ExactIn,
				LegKind:   LegKindToken,
			},
		},
		{
			name:    "zero trade mode",
			version: V3,
			swap: Instructions{
				LegKind: LegKindToken,
			},
		},
		{
			name:    "unknown trade mode",
			version: V2,
			swap: Instructions{
				TradeMode: 3,
			},
		},
		{
			name:    "leg kind in v2",
			version: V2,
			swap: Instructions{
				TradeMode: ExactIn,
				LegKind:   LegKindNative,
			},
		},
		{
			name:    "missing leg kind in v3",
			version: V3,
			swap: Instructions{
				TradeMode: ExactIn,
			},
		},
	}

	for _, test := range tests {
		test := test

		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			codec, err := NewCodec(test.version)
			require.NoError(t, err)

			swap := test.swap
			_, err = codec.Encode(&Payload{Swap: &swap})
			require.ErrorIs(t, err, ErrUnrepresentable)
		})
	}

	_, err := NewCodec(Version(4))
	require.Error(t, err)
}

// TestRecipientAddress checks the 20 byte address extraction.
func TestRecipientAddress(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0xdeadbeef")
	r := RecipientFromAddress(addr)

	got, ok := r.Address()
	require.True(t, ok)
	require.Equal(t, addr, got)

	r[0] = 1
	_, ok = r.Address()
	require.False(t, ok)
}
