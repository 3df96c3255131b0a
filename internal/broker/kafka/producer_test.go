package kafka

import "testing"

func TestConfigMap(t *testing.T) {
	if _, err := (ProducerConfig{Topic: "t"}).configMap(); err == nil {
		t.Fatal("expected error without brokers")
	}
	if _, err := (ProducerConfig{Brokers: []string{"b:9092"}}).configMap(); err == nil {
		t.Fatal("expected error without topic")
	}

	cm, err := ProducerConfig{
		Brokers:  []string{"a:9092", "b:9092"},
		Topic:    "arb",
		ClientID: "scanner",
		Acks:     "all",
	}.configMap()
	if err != nil {
		t.Fatalf("configMap: %v", err)
	}
	want := map[string]string{
		"bootstrap.servers": "a:9092,b:9092",
		"client.id":         "scanner",
		"acks":              "all",
	}
	for k, v := range want {
		got, err := cm.Get(k, nil)
		if err != nil || got != v {
			t.Errorf("%s = %v (%v), want %s", k, got, err, v)
		}
	}
}

func TestNewMessage(t *testing.T) {
	msg := newMessage("arb", "BTC/USDT", []byte("{}"), map[string]string{"event": "opportunity"})
	if *msg.TopicPartition.Topic != "arb" {
		t.Fatalf("topic = %s", *msg.TopicPartition.Topic)
	}
	if string(msg.Key) != "BTC/USDT" {
		t.Fatalf("key = %s", msg.Key)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != "event" || string(msg.Headers[0].Value) != "opportunity" {
		t.Fatalf("headers = %v", msg.Headers)
	}

	if m := newMessage("arb", "", nil, nil); m.Key != nil {
		t.Fatal("empty key should stay nil")
	}
}
