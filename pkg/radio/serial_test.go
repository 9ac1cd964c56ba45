package radio

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort answers AT commands from a script.
type fakePort struct {
	mu        sync.Mutex
	responses map[string]string
	out       []byte
	sent      []string
	closed    bool
}

func newFakePort(responses map[string]string) *fakePort {
	return &fakePort{responses: responses}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cmd := strings.TrimSpace(string(b))
	p.sent = append(p.sent, cmd)
	if resp, ok := p.responses[cmd]; ok {
		p.out = append(p.out, resp...)
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.out) == 0 {
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(b, p.out)
	p.out = p.out[n:]
	p.mu.Unlock()
	return n, nil
}

// push queues output the modem sends on its own, such as a late reply.
func (p *fakePort) push(out string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, out...)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func attachedSerial(t *testing.T, responses map[string]string) (*Serial, *fakePort) {
	t.Helper()
	init := map[string]string{
		"AT":          "\r\nOK\r\n",
		"ATE0":        "ATE0\r\n\r\nOK\r\n",
		"AT+CWMODE=1": "\r\nOK\r\n",
	}
	for k, v := range responses {
		init[k] = v
	}
	p := newFakePort(init)
	s := NewSerial("fake", 0, 200*time.Millisecond, zerolog.Nop())
	require.NoError(t, s.attach(context.Background(), p))
	return s, p
}

func TestParseCWLAP(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Network
		wantErr bool
	}{
		{
			name: "wpa2 network",
			line: `+CWLAP:(3,"HomeNet",-52,"aa:bb:cc:dd:ee:ff",6)`,
			want: Network{SSID: "HomeNet", RSSI: -52, Security: SecurityWPA2, Channel: 6},
		},
		{
			name: "open network with extra fields",
			line: `+CWLAP:(0,"Cafe",-74,"11:22:33:44:55:66",11,-12,0,4,4,7,1)`,
			want: Network{SSID: "Cafe", RSSI: -74, Security: SecurityOpen, Channel: 11},
		},
		{
			name: "ssid with escaped comma and quote",
			line: `+CWLAP:(6,"a\,b\"c",-60,"aa:bb:cc:dd:ee:ff",1)`,
			want: Network{SSID: `a,b"c`, RSSI: -60, Security: SecurityWPA3, Channel: 1},
		},
		{
			name: "unknown encryption",
			line: `+CWLAP:(9,"Odd",-70,"aa:bb:cc:dd:ee:ff",3)`,
			want: Network{SSID: "Odd", RSSI: -70, Security: SecurityUnknown, Channel: 3},
		},
		{
			name:    "invalid - too few fields",
			line:    `+CWLAP:(3,"x")`,
			wantErr: true,
		},
		{
			name:    "invalid - rssi not a number",
			line:    `+CWLAP:(3,"x",strong,"aa",1)`,
			wantErr: true,
		},
		{
			name:    "invalid - wrong prefix",
			line:    `+CWJAP:1`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCWLAP(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJoinFailure(t *testing.T) {
	tests := []struct {
		lines []string
		want  Reason
	}{
		{[]string{"+CWJAP:1"}, ReasonAssocLeave},
		{[]string{"WIFI DISCONNECT", "+CWJAP:2"}, ReasonAuthFail},
		{[]string{"+CWJAP:3"}, ReasonNoAPFound},
		{[]string{"+CWJAP:4"}, ReasonAssocFail},
		{nil, ReasonUnspecified},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseJoinFailure(tt.lines), "%v", tt.lines)
	}
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `my\,net\"\\`, escape(`my,net"\`))
	assert.Equal(t, "plain", escape("plain"))
}

func TestSerial_Scan(t *testing.T) {
	s, _ := attachedSerial(t, map[string]string{
		"AT+CWLAP": "+CWLAP:(3,\"HomeNet\",-52,\"aa:bb:cc:dd:ee:ff\",6)\r\n" +
			"+CWLAP:(garbage)\r\n" +
			"+CWLAP:(0,\"Cafe\",-74,\"11:22:33:44:55:66\",11)\r\n\r\nOK\r\n",
	})

	networks, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Network{
		{SSID: "HomeNet", RSSI: -52, Security: SecurityWPA2, Channel: 6},
		{SSID: "Cafe", RSSI: -74, Security: SecurityOpen, Channel: 11},
	}, networks)
}

func TestSerial_ConnectFailure(t *testing.T) {
	s, p := attachedSerial(t, map[string]string{
		`AT+CWJAP="HomeNet","wrong"`: "WIFI DISCONNECT\r\n+CWJAP:2\r\n\r\nFAIL\r\n",
		"AT+CWJAP?":                  "No AP\r\n\r\nOK\r\n",
	})

	err := s.Connect(context.Background(), Credentials{SSID: "HomeNet", Passphrase: "wrong"}, time.Second)
	require.Error(t, err)
	assert.Equal(t, ReasonAuthFail, ReasonOf(err))
	assert.Contains(t, p.sent, `AT+CWJAP="HomeNet","wrong"`)

	st, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Connected)
	assert.Equal(t, ReasonAuthFail, st.Reason)
}

func TestSerial_ConnectTimeout(t *testing.T) {
	s, _ := attachedSerial(t, nil)

	err := s.Connect(context.Background(), Credentials{SSID: "Silent"}, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, ReasonAssocLeave, ReasonOf(err))
}

func TestSerial_LateJoinReplyIsDiscarded(t *testing.T) {
	s, p := attachedSerial(t, map[string]string{
		"AT+CWLAP": "+CWLAP:(3,\"HomeNet\",-52,\"aa:bb:cc:dd:ee:ff\",6)\r\n\r\nOK\r\n",
	})

	err := s.Connect(context.Background(), Credentials{SSID: "HomeNet", Passphrase: "surfsup42"}, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, ReasonAssocLeave, ReasonOf(err))

	// The join completes after the driver gave up on it
	p.push("WIFI CONNECTED\r\nWIFI GOT IP\r\n\r\nOK\r\n")

	networks, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Equal(t, "HomeNet", networks[0].SSID)
	assert.Empty(t, s.outstanding)
	assert.Equal(t, ReasonNone, s.lastReason)
}

func TestSerial_LateFailureReplyIsDiscarded(t *testing.T) {
	s, p := attachedSerial(t, map[string]string{
		"AT+CWJAP?": "No AP\r\n\r\nOK\r\n",
	})

	err := s.Connect(context.Background(), Credentials{SSID: "HomeNet", Passphrase: "wrong"}, 20*time.Millisecond)
	require.Error(t, err)
	p.push("WIFI DISCONNECT\r\n+CWJAP:2\r\n\r\nFAIL\r\n")

	st, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Connected)
	assert.Equal(t, "AT+CWJAP?", p.sent[len(p.sent)-1])
}

func TestSerial_MissingLateReplyDropsInput(t *testing.T) {
	s, p := attachedSerial(t, map[string]string{
		"AT+CWLAP": "+CWLAP:(0,\"Cafe\",-74,\"11:22:33:44:55:66\",11)\r\n\r\nOK\r\n",
	})
	s.lateTimeout = 30 * time.Millisecond

	require.Error(t, s.Connect(context.Background(), Credentials{SSID: "Silent"}, 20*time.Millisecond))
	p.push("busy p...\r\n")

	networks, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Equal(t, "Cafe", networks[0].SSID)
	assert.Empty(t, s.outstanding)
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "AT+CWJAP", commandName(`AT+CWJAP="HomeNet","secret"`))
	assert.Equal(t, "AT+CWLAP", commandName("AT+CWLAP"))
}

func TestSerial_ConnectSuccessAndStatus(t *testing.T) {
	s, _ := attachedSerial(t, map[string]string{
		`AT+CWJAP="HomeNet","surfsup42"`: "WIFI CONNECTED\r\nWIFI GOT IP\r\n\r\nOK\r\n",
		"AT+CWJAP?":                    "+CWJAP:\"HomeNet\",\"aa:bb:cc:dd:ee:ff\",6,-52\r\n\r\nOK\r\n",
	})

	require.NoError(t, s.Connect(context.Background(), Credentials{SSID: "HomeNet", Passphrase: "surfsup42"}, time.Second))
	st, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Status{Connected: true, SSID: "HomeNet"}, st)
}

func TestSerial_AccessPoint(t *testing.T) {
	s, p := attachedSerial(t, map[string]string{
		"AT+CWMODE=3": "\r\nOK\r\n",
		`AT+CWSAP="SurfLamp-Setup","surf123456",5,3`: "\r\nOK\r\n",
	})

	require.NoError(t, s.StartAccessPoint(context.Background(), "SurfLamp-Setup", "surf123456"))
	require.NoError(t, s.StopAccessPoint(context.Background()))
	assert.Equal(t, []string{"AT+CWMODE=3", `AT+CWSAP="SurfLamp-Setup","surf123456",5,3`, "AT+CWMODE=1"}, p.sent[3:])
}

func TestSerial_CancelledCommand(t *testing.T) {
	s, _ := attachedSerial(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSerial_NotOpen(t *testing.T) {
	s := NewSerial("fake", 0, 0, zerolog.Nop())
	_, err := s.Scan(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, s.Close())
}
