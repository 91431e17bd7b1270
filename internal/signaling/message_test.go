package signaling

import (
	"errors"
	"testing"
)

// TestEncodeWireShape verifies the exact JSON records put on the channel.
func TestEncodeWireShape(t *testing.T) {
	testCases := []struct {
		name string
		msg  Message
		want string
	}{
		{"answer", Message{Kind: KindAnswer, Payload: "v=0\r\n"}, `{"type":"answer","data":"v=0\r\n"}`},
		{"ice", Message{Kind: KindICE, Payload: `{"candidate":"c"}`}, `{"type":"ice","data":"{\"candidate\":\"c\"}"}`},
		{"no payload", Message{Kind: "ping"}, `{"type":"ping"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Encode(tc.msg)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("Encode = %s, want %s", got, tc.want)
			}
		})
	}
}

// TestDecodeValid verifies decoding of well-formed records, including kinds
// this package does not know.
func TestDecodeValid(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want Message
	}{
		{"offer", `{"type":"offer","data":"v=0...sdpA"}`, Message{Kind: KindOffer, Payload: "v=0...sdpA"}},
		{"ice", `{"type":"ice","data":"{}"}`, Message{Kind: KindICE, Payload: "{}"}},
		{"extra fields", `{"type":"answer","data":"x","from":"pi"}`, Message{Kind: KindAnswer, Payload: "x"}},
		{"unknown kind", `{"type":"hello"}`, Message{Kind: "hello"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.in))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("Decode = %+v, want %+v", got, tc.want)
			}
		})
	}
}

// TestDecodeMalformed verifies that every malformed record yields a CodecError.
func TestDecodeMalformed(t *testing.T) {
	testCases := []struct {
		name string
		in   string
	}{
		{"empty", ``},
		{"not json", `offer`},
		{"array", `[]`},
		{"type not string", `{"type":1,"data":"x"}`},
		{"missing type", `{"data":"x"}`},
		{"offer without data", `{"type":"offer"}`},
		{"answer with empty data", `{"type":"answer","data":""}`},
		{"ice with null data", `{"type":"ice","data":null}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.in))
			var codecErr *CodecError
			if !errors.As(err, &codecErr) {
				t.Errorf("Decode(%q) error = %v, want *CodecError", tc.in, err)
			}
		})
	}
}

// TestKnownKinds verifies the forward-compatibility switch.
func TestKnownKinds(t *testing.T) {
	for _, k := range []Kind{KindOffer, KindAnswer, KindICE} {
		if !k.Known() {
			t.Errorf("%q not known", k)
		}
	}
	if Kind("bye").Known() {
		t.Errorf("unexpected kind reported as known")
	}
}

// TestStatusText verifies the display strings shown to the user.
func TestStatusText(t *testing.T) {
	testCases := []struct {
		status Status
		want   string
	}{
		{Status{Kind: StatusDisconnected}, "Disconnected"},
		{Status{Kind: StatusSignalingConnected}, "Signaling Server Connected"},
		{Status{Kind: StatusOfferReceived}, "Received Offer"},
		{Status{Kind: StatusAnswerSent}, "Sent Answer"},
		{Status{Kind: StatusPeerState, Detail: "checking"}, "WebRTC State: checking"},
		{Status{Kind: StatusStreamReceived}, "Stream Received"},
		{Status{Kind: StatusError, Detail: "boom"}, "Error: boom"},
	}

	for _, tc := range testCases {
		if got := tc.status.String(); got != tc.want {
			t.Errorf("Status%+v.String() = %q, want %q", tc.status, got, tc.want)
		}
	}
}
