package sched

// Rendezvous messaging. A send blocks until the receiver has both received
// and replied:
//
//	sender              receiver
//	Send ──────────────▶ Receive   (SendBlocked or RecvBlocked until matched)
//	  ReplyBlocked       ...
//	     ◀────────────── Reply
//
// Whichever side arrives first waits. Messages are copied directly between
// the two tasks' buffers; lengths must match exactly.

func (s *Scheduler) sendLocked(t *Task, r sendReq) {
	dst := s.slab.live(r.to)
	if dst == nil {
		violation("send", t.id, "no such task %d", r.to)
	}
	if dst == t {
		violation("send", t.id, "cannot send to self")
	}
	if dst.state == StateZombie {
		violation("send", t.id, "task %d has already exited", r.to)
	}

	t.sendMsg = r.msg
	t.replyBuf = r.reply

	if dst.state == StateRecvBlocked {
		s.deliverLocked(t, dst)
		dst.resume = t.id
		s.reactivateLocked(dst)
		return
	}

	t.state = StateSendBlocked
	dst.mailbox.Enqueue(t.id)
	s.emit(StatusBlock, t, "")
}

func (s *Scheduler) receiveLocked(t *Task, r receiveReq) {
	t.recvBuf = r.buf

	for !t.mailbox.Empty() {
		v, _ := t.mailbox.Dequeue()
		src := s.slab.live(v.(TaskID))
		if src == nil || src.state != StateSendBlocked {
			continue
		}
		s.deliverLocked(src, t)
		t.resume = src.id
		s.reactivateLocked(t)
		return
	}

	t.state = StateRecvBlocked
	s.emit(StatusBlock, t, "")
}

// deliverLocked copies the sender's message into the receiver's buffer and
// leaves the sender waiting for the reply.
func (s *Scheduler) deliverLocked(src, dst *Task) {
	if len(src.sendMsg) != len(dst.recvBuf) {
		violation("send", src.id, "message of %d bytes sent to task %d receiving %d", len(src.sendMsg), dst.id, len(dst.recvBuf))
	}
	copy(dst.recvBuf, src.sendMsg)
	src.sendMsg = nil
	dst.recvBuf = nil
	src.state = StateReplyBlocked
	src.peer = dst.id
	dst.replyWaiters++
	s.emit(StatusBlock, src, "")
}

func (s *Scheduler) replyLocked(t *Task, r replyReq) {
	dst := s.slab.live(r.to)
	if dst == nil || dst.state != StateReplyBlocked || dst.peer != t.id {
		violation("reply", t.id, "task %d is not waiting for a reply from this task", r.to)
	}
	if len(r.reply) != len(dst.replyBuf) {
		violation("reply", t.id, "reply of %d bytes to task %d expecting %d", len(r.reply), dst.id, len(dst.replyBuf))
	}
	copy(dst.replyBuf, r.reply)
	dst.replyBuf = nil
	dst.peer = NullTID
	t.replyWaiters--

	s.reactivateLocked(dst)
	s.reactivateLocked(t)
}
