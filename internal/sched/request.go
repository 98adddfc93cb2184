package sched

// reqKind tags the request a task suspended with.
type reqKind int

const (
	reqCreate reqKind = iota
	reqMyID
	reqMyParentID
	reqYield
	reqSend
	reqReceive
	reqReply
	reqAwaitEvent
	reqSetDestructor
	reqWait
	reqExit
	reqRegister
	reqWhoIs
)

var reqNames = [...]string{
	reqCreate:        "create",
	reqMyID:          "my_id",
	reqMyParentID:    "my_parent_id",
	reqYield:         "yield",
	reqSend:          "send",
	reqReceive:       "receive",
	reqReply:         "reply",
	reqAwaitEvent:    "await_event",
	reqSetDestructor: "set_destructor",
	reqWait:          "wait",
	reqExit:          "exit",
	reqRegister:      "register",
	reqWhoIs:         "who_is",
}

func (k reqKind) String() string {
	if k >= 0 && int(k) < len(reqNames) {
		return reqNames[k]
	}
	return "unknown"
}

type request interface {
	kind() reqKind
}

type (
	createReq struct {
		prio   float64
		entry  Entry
		arg    any
		future *Future
		flags  Flags
	}
	myIDReq       struct{}
	myParentIDReq struct{}
	yieldReq      struct{}
	sendReq       struct {
		to    TaskID
		msg   []byte
		reply []byte
	}
	receiveReq struct {
		buf []byte
	}
	replyReq struct {
		to    TaskID
		reply []byte
	}
	awaitEventReq struct {
		event EventID
	}
	setDestructorReq struct {
		fn  func(any)
		arg any
	}
	waitReq struct {
		child TaskID
	}
	exitReq struct {
		ret any
	}
	registerReq struct {
		name string
	}
	whoIsReq struct {
		name     string
		blocking bool
	}
)

func (createReq) kind() reqKind        { return reqCreate }
func (myIDReq) kind() reqKind          { return reqMyID }
func (myParentIDReq) kind() reqKind    { return reqMyParentID }
func (yieldReq) kind() reqKind         { return reqYield }
func (sendReq) kind() reqKind          { return reqSend }
func (receiveReq) kind() reqKind       { return reqReceive }
func (replyReq) kind() reqKind         { return reqReply }
func (awaitEventReq) kind() reqKind    { return reqAwaitEvent }
func (setDestructorReq) kind() reqKind { return reqSetDestructor }
func (waitReq) kind() reqKind          { return reqWait }
func (exitReq) kind() reqKind          { return reqExit }
func (registerReq) kind() reqKind      { return reqRegister }
func (whoIsReq) kind() reqKind         { return reqWhoIs }
