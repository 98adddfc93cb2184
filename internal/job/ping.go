package job

import (
	"encoding/binary"

	"fibersched/internal/sched"
)

// MsgSize is the fixed size of ping messages and replies.
const MsgSize = 8

// PingServerName is the name PingServer registers under.
const PingServerName = "ping"

// PingServer registers as PingServerName and answers every message with
// its sequence number incremented. arg is the number of messages to serve
// before returning (0 or nil serves forever). It returns the number served.
func PingServer(t *sched.Task, arg any) any {
	limit, _ := arg.(int)
	t.Register(PingServerName)

	msg := make([]byte, MsgSize)
	reply := make([]byte, MsgSize)
	served := 0
	for limit == 0 || served < limit {
		from := t.Receive(msg)
		binary.LittleEndian.PutUint64(reply, binary.LittleEndian.Uint64(msg)+1)
		t.Reply(from, reply)
		served++
	}
	return served
}

// PingClient returns a body that looks the server up, sends n pings and
// returns how many replies were correct.
func PingClient(n int) sched.Entry {
	return func(t *sched.Task, _ any) any {
		server := t.WhoIs(PingServerName, true)

		msg := make([]byte, MsgSize)
		reply := make([]byte, MsgSize)
		ok := 0
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint64(msg, uint64(i))
			t.Send(server, msg, reply)
			if binary.LittleEndian.Uint64(reply) == uint64(i)+1 {
				ok++
			}
		}
		return ok
	}
}
