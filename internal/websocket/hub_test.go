package websocket

import (
	"strings"
	"sync"
	"testing"
	"time"

	"tradedesk/internal/models"
)

// testClient создает клиента без реального соединения и читает все,
// что hub ему отправляет
func testClient(hub *Hub, userID string, received chan []byte) *Client {
	client := &Client{
		hub:    hub,
		userID: userID,
		send:   make(chan []byte, clientSendBufferSize),
	}
	go func() {
		for msg := range client.send {
			received <- msg
		}
	}()
	return client
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
}

func TestOriginChecker_Check(t *testing.T) {
	checker := &OriginChecker{
		allowedOrigins: map[string]struct{}{
			"http://localhost:3000": {},
			"https://example.com":   {},
		},
		allowAll: false,
	}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},                       // empty origin allowed
		{"http://localhost:3000", true},  // allowed
		{"https://example.com", true},    // allowed
		{"http://evil.com", false},       // not allowed
		{"http://localhost:8080", false}, // not in list
	}

	for _, tt := range tests {
		if got := checker.Check(tt.origin); got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginChecker_AllowAll(t *testing.T) {
	checker := &OriginChecker{allowAll: true}

	for _, origin := range []string{
		"http://localhost:3000",
		"https://evil.com",
		"http://anything.example.org",
	} {
		if !checker.Check(origin) {
			t.Errorf("allowAll=true but Check(%q) = false", origin)
		}
	}
}

func TestHub_UserScopedRouting(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	user1 := make(chan []byte, 16)
	user2 := make(chan []byte, 16)
	hub.register <- testClient(hub, "user-1", user1)
	hub.register <- testClient(hub, "user-2", user2)
	waitForClients(t, hub, 2)

	hub.BroadcastOrderUpdate(&models.Order{
		ID: 7, UserID: "user-1", Symbol: "BTC-USD", Status: models.OrderStatusOpen,
	})

	select {
	case msg := <-user1:
		if !strings.Contains(string(msg), `"orderUpdate"`) {
			t.Errorf("unexpected message: %s", msg)
		}
		if !strings.Contains(string(msg), `"BTC-USD"`) {
			t.Errorf("order payload missing: %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("owner did not receive order update")
	}

	// Чужой пользователь событие не видит
	select {
	case msg := <-user2:
		t.Errorf("user-2 received foreign order update: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastAll(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	user1 := make(chan []byte, 16)
	user2 := make(chan []byte, 16)
	hub.register <- testClient(hub, "user-1", user1)
	hub.register <- testClient(hub, "user-2", user2)
	waitForClients(t, hub, 2)

	// Пустой userID - рассылка всем
	hub.Broadcast("", map[string]string{"type": "ping"})

	for name, ch := range map[string]chan []byte{"user-1": user1, "user-2": user2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Errorf("%s did not receive global broadcast", name)
		}
	}
}

func TestHub_BalanceSyncMessage(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	received := make(chan []byte, 16)
	hub.register <- testClient(hub, "user-1", received)
	waitForClients(t, hub, 1)

	hub.BroadcastBalanceSync("user-1", 3, 5)

	select {
	case msg := <-received:
		for _, want := range []string{`"balanceSync"`, `"connection_id":3`, `"currencies":5`} {
			if !strings.Contains(string(msg), want) {
				t.Errorf("message %s missing %s", msg, want)
			}
		}
	case <-time.After(time.Second):
		t.Fatal("balance sync message not received")
	}
}

func TestHub_SlowClientRemoved(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	// Клиент с крошечным буфером, который никто не читает
	slow := &Client{hub: hub, userID: "user-1", send: make(chan []byte, 1)}
	hub.register <- slow
	waitForClients(t, hub, 1)

	for i := 0; i < 5; i++ {
		hub.Broadcast("user-1", map[string]int{"i": i})
	}

	waitForClients(t, hub, 0)
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub()

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	hub.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Hub.Run() did not exit after Stop()")
	}
}

func TestHub_ConcurrentOperations(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	var wg sync.WaitGroup
	const goroutines = 10
	const operations = 1000

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				hub.Broadcast("user-1", map[string]int{"goroutine": id, "op": j})
			}
		}(i)
	}

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				_ = hub.ClientCount()
			}
		}()
	}

	wg.Wait()
}

// ============ Benchmarks ============

func BenchmarkHub_Broadcast(b *testing.B) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	order := &models.Order{ID: 1, UserID: "user-1", Symbol: "BTC-USD", Status: models.OrderStatusOpen}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastOrderUpdate(order)
	}
}

func BenchmarkHub_BroadcastRaw(b *testing.B) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	data := []byte(`{"type":"orderUpdate","data":{"id":1}}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastRaw("user-1", data)
	}
}

func BenchmarkOriginChecker_Check(b *testing.B) {
	for i := 0; i < b.N; i++ {
		originChecker.Check("http://localhost:3000")
	}
}
