package connmgr

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"
)

func TestDialHandshakeWithIdentify(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	serverLines := make(chan string, 2)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for i := 0; i < 2; i++ {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			serverLines <- line
			conn.Write([]byte("C\n"))
		}
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, Options{Server: host, Port: port, Identify: "irrexpand/1.0"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	first := <-serverLines
	second := <-serverLines
	if first != "!!\n" {
		t.Fatalf("first command = %q, want \"!!\\n\"", first)
	}
	if second != "!nirrexpand/1.0\n" {
		t.Fatalf("second command = %q, want identify line", second)
	}
}

func TestDialNoIdentify(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		r.ReadString('\n')
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, Options{Server: host, Port: port})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if conn.Pipelining() {
		t.Fatalf("expected pipelining disabled by default")
	}
}

func TestDialConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close() // nothing listening now

	host, port, _ := net.SplitHostPort(addr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Dial(ctx, Options{Server: host, Port: port}); err == nil {
		t.Fatalf("expected Dial to fail against a closed listener")
	}
}
