package server

// Event codes attached to trace lines. The high byte carries the severity
// class, the second byte the emitting component.
const (
	// event loop
	codeInitialized   = 0x00010100
	codeServing       = 0x00010180
	codeWaitInterrupt = 0x800103f0
	codeWaitFailed    = 0x80010400
	codeWaitIdle      = 0x000103f8
	codeWaitBegin     = 0x000103e0
	codePoolExhausted = 0x4001e000
	codeDispatchError = 0x8001f000
	codeFinished      = 0x0001fff0
	codeCompleted     = 0x0001ffff

	// listener set
	codeListenerClose   = 0x01020100
	codeAddressInfo     = 0x81030200
	codeListenFailed    = 0x81030400
	codeListening       = 0x01030480
	codeNoListener      = 0x8103f000
	codeGatewayFailed   = 0x81030600
	codeGatewayUp       = 0x01030680
	codeAcceptFailed    = 0x82030200
	codeListenerDropped = 0x82030300

	// connection pool
	codeConnClose       = 0x02030100
	codeConnEstablished = 0x02030400
	codeConnRejected    = 0x8203e000
	codeProcessMessage  = 0x02050400
	codeSlotSelected    = 0x42010200
	codeSlotTable       = 0x42010100
	codeNoVacantSlot    = 0xc201e000
	codeRecvTimeout     = 0x42020080
	codeRecvFailed      = 0xc2020100
	codeRemoteClosed    = 0xc2020200
	codeRecvDump        = 0x42050210
	codeQuit            = 0x42050300
	codeRateLimited     = 0x42050380
	codeBroadcast       = 0x42040200
	codeSendFailed      = 0xc2044100

	// websocket gateway
	codeUpgradeFailed = 0x83010100
	codeOriginBlocked = 0x83010200
	codeOriginInvalid = 0x83010300
	codeWSReadClosed  = 0x03020100
	codeWSWriteFailed = 0x83020200
)
