/*
 * Copyright 2026 The fbsql Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package protocol defines the versioned binary contract of the Firebird
// wire protocol: operation codes, parameter-block and info-item tags, the
// protocol descriptor chain, and the response records every request
// resolves to. The numbers are fixed by the server implementation and must
// be preserved bit for bit.
package protocol

// Operation codes.
const (
	OpConnect          int32 = 1
	OpExit             int32 = 2
	OpAccept           int32 = 3
	OpReject           int32 = 4
	OpProtocol         int32 = 5
	OpDisconnect       int32 = 6
	OpResponse         int32 = 9
	OpAttach           int32 = 19
	OpCreate           int32 = 20
	OpDetach           int32 = 21
	OpTransaction      int32 = 29
	OpCommit           int32 = 30
	OpRollback         int32 = 31
	OpPrepare          int32 = 32
	OpReconnect        int32 = 33
	OpCreateBlob       int32 = 34
	OpOpenBlob         int32 = 35
	OpGetSegment       int32 = 36
	OpPutSegment       int32 = 37
	OpCancelBlob       int32 = 38
	OpCloseBlob        int32 = 39
	OpInfoDatabase     int32 = 40
	OpInfoRequest      int32 = 41
	OpInfoTransaction  int32 = 42
	OpInfoBlob         int32 = 43
	OpBatchSegments    int32 = 44
	OpQueEvents        int32 = 48
	OpCancelEvents     int32 = 49
	OpCommitRetaining  int32 = 50
	OpPrepare2         int32 = 51
	OpEvent            int32 = 52
	OpConnectRequest   int32 = 53
	OpAuxConnect       int32 = 54
	OpDdl              int32 = 55
	OpOpenBlob2        int32 = 56
	OpCreateBlob2      int32 = 57
	OpGetSlice         int32 = 58
	OpPutSlice         int32 = 59
	OpSlice            int32 = 60
	OpSeekBlob         int32 = 61
	OpAllocateStmt     int32 = 62
	OpExecute          int32 = 63
	OpExecImmediate    int32 = 64
	OpFetch            int32 = 65
	OpFetchResponse    int32 = 66
	OpFreeStmt         int32 = 67
	OpPrepareStmt      int32 = 68
	OpSetCursor        int32 = 69
	OpInfoSQL          int32 = 70
	OpDummy            int32 = 71
	OpExecute2         int32 = 76
	OpSQLResponse      int32 = 78
	OpDropDatabase     int32 = 81
	OpServiceAttach    int32 = 82
	OpServiceDetach    int32 = 83
	OpServiceInfo      int32 = 84
	OpServiceStart     int32 = 85
	OpRollbackRetain   int32 = 86
	OpUpdateAccount    int32 = 87
	OpAuthenticateUser int32 = 88
	OpPartial          int32 = 89
	OpTrustedAuth      int32 = 90
	OpCancel           int32 = 91
	OpContAuth         int32 = 92
	OpPing             int32 = 93
	OpAcceptData       int32 = 94
	OpAbortAuxConn     int32 = 95
	OpCrypt            int32 = 96
	OpCryptKeyCallback int32 = 97
	OpCondAccept       int32 = 98
	OpBatchCreate      int32 = 99
	OpBatchMsg         int32 = 100
	OpBatchExec        int32 = 101
	OpBatchRls         int32 = 102
	OpBatchCS          int32 = 105
	OpBatchCancel      int32 = 109
	OpBatchSync        int32 = 110
	OpInfoBatch        int32 = 111
	OpFetchScroll      int32 = 112
	OpInfoCursor       int32 = 113
)

// Protocol versions. Versions 11 and later are masked with the protocol
// flag on the wire.
const (
	ProtocolVersion10 int32 = 10
	ProtocolVersion11 int32 = 11
	ProtocolVersion12 int32 = 12
	ProtocolVersion13 int32 = 13
	ProtocolVersion15 int32 = 15
	ProtocolVersion16 int32 = 16
	ProtocolVersion17 int32 = 17
	ProtocolVersion18 int32 = 18

	protocolFlag int32 = 0x8000

	// ConnectVersion3 is the p_cnct version word sent in op_connect.
	ConnectVersion3 int32 = 3

	// ArchGeneric is the architecture tag of a portable client.
	ArchGeneric int32 = 1
)

// Connection (p_cnct) types and accept-type flags.
const (
	PtypeBatchSend int32 = 3
	PtypeOutOfBand int32 = 4
	PtypeLazySend  int32 = 5

	PtypeMask     int32 = 0xFF
	PflagCompress int32 = 0x100
)

// MaskVersion converts a protocol version to its wire form.
func MaskVersion(v int32) int32 {
	if v > ProtocolVersion10 {
		return v | protocolFlag
	}
	return v
}

// UnmaskVersion converts a wire protocol version to its plain form.
func UnmaskVersion(v int32) int32 {
	if v < 0 {
		// Historical two's-complement form of the masked version.
		return v & 0x7FFF
	}
	return v &^ protocolFlag
}

// User identification (CNCT) tags carried in op_connect.
const (
	CnctUser             = 1
	CnctPasswd           = 2
	CnctHost             = 4
	CnctGroup            = 5
	CnctUserVerification = 6
	CnctSpecificData     = 7
	CnctPluginName       = 8
	CnctLogin            = 9
	CnctPluginList       = 10
	CnctClientCrypt      = 11
)

// Wire-crypt negotiation levels (CnctClientCrypt values).
const (
	WireCryptDisabled int32 = 0
	WireCryptEnabled  int32 = 1
	WireCryptRequired int32 = 2
)

// Database parameter block tags.
const (
	DpbVersion1         = 1
	DpbPageSize         = 4
	DpbNumBuffers       = 5
	DpbForceWrite       = 24
	DpbUserName         = 28
	DpbPassword         = 29
	DpbPasswordEnc      = 30
	DpbLcCtype          = 48
	DpbOverwrite        = 54
	DpbConnectTimeout   = 57
	DpbDummyPacketItvl  = 58
	DpbSQLRoleName      = 60
	DpbSQLDialect       = 63
	DpbSetDbCharset     = 68
	DpbProcessID        = 71
	DpbNoDbTriggers     = 72
	DpbTrustedAuth      = 73
	DpbProcessName      = 74
	DpbUTF8Filename     = 77
	DpbSpecificAuthData = 84
	DpbAuthPluginList   = 85
	DpbAuthPluginName   = 86
	DpbConfig           = 87
	DpbNolinger         = 88
	DpbSessionTimeZone  = 91
)

// Service parameter block tags.
const (
	SpbVersion        = 2
	SpbUserName       = 28
	SpbPassword       = 29
	SpbCommandLine    = 105
	SpbDbname         = 106
	SpbVerbose        = 107
	SpbOptions        = 108
	SpbSpecificAuth   = 111
	SpbProcessName    = 112
	SpbExpectedDb     = 124
	SpbCurrentVersion = 2
)

// Transaction parameter block tags.
const (
	TpbVersion3      = 3
	TpbConsistency   = 1
	TpbConcurrency   = 2
	TpbWait          = 6
	TpbNowait        = 7
	TpbRead          = 8
	TpbWrite         = 9
	TpbReadCommitted = 15
	TpbAutocommit    = 16
	TpbRecVersion    = 17
	TpbNoRecVersion  = 18
	TpbNoAutoUndo    = 20
	TpbLockTimeout   = 21
)

// Blob parameter block tags.
const (
	BpbVersion1         = 1
	BpbSourceType       = 1
	BpbTargetType       = 2
	BpbType             = 3
	BpbTypeSegmented    = 0
	BpbTypeStream       = 1
)

// Blob seek modes.
const (
	BlobSeekFromBeginning = 0
	BlobSeekRelative      = 1
	BlobSeekFromEnd       = 2
)

// Info request item tags common to every object kind.
const (
	InfoEnd          = 1
	InfoTruncated    = 2
	InfoError        = 3
	InfoDataNotReady = 4
	InfoLength       = 126
	InfoFlagEnd      = 127
)

// Database info items.
const (
	InfoDbID            = 4
	InfoDbReads         = 5
	InfoDbWrites        = 6
	InfoDbFetches       = 7
	InfoDbImplementation = 11
	InfoDbVersion       = 12
	InfoDbBaseLevel     = 13
	InfoDbPageSize      = 14
	InfoDbLimbo         = 16
	InfoDbAttachmentID  = 22
	InfoDbSQLDialect    = 62
	InfoDbReadOnly      = 63
	InfoDbFirebirdVersion = 103
)

// Transaction info items.
const (
	InfoTraID                = 4
	InfoTraOldestInteresting = 5
	InfoTraOldestSnapshot    = 6
	InfoTraOldestActive      = 7
	InfoTraIsolation         = 8
	InfoTraAccess            = 9
	InfoTraLockTimeout       = 10
)

// SQL info items.
const (
	InfoSQLSelect       = 4
	InfoSQLBind         = 5
	InfoSQLNumVariables = 6
	InfoSQLDescribeVars = 7
	InfoSQLDescribeEnd  = 8
	InfoSQLSqldaSeq     = 9
	InfoSQLMessageSeq   = 10
	InfoSQLType         = 11
	InfoSQLSubType      = 12
	InfoSQLScale        = 13
	InfoSQLLength       = 14
	InfoSQLNullInd      = 15
	InfoSQLField        = 16
	InfoSQLRelation     = 17
	InfoSQLOwner        = 18
	InfoSQLAlias        = 19
	InfoSQLSqldaStart   = 20
	InfoSQLStmtType     = 21
	InfoSQLGetPlan      = 22
	InfoSQLRecords      = 23
	InfoSQLBatchFetch   = 24
	InfoSQLStmtTimeout  = 31

	// Row counts nested inside an InfoSQLRecords value.
	InfoReqSelectCount = 13
	InfoReqInsertCount = 14
	InfoReqUpdateCount = 15
	InfoReqDeleteCount = 16
)

// Blob info items.
const (
	InfoBlobNumSegments = 4
	InfoBlobMaxSegment  = 5
	InfoBlobTotalLength = 6
	InfoBlobType        = 7
)

// Statement types reported by InfoSQLStmtType.
const (
	StmtTypeNone          = 0
	StmtTypeSelect        = 1
	StmtTypeInsert        = 2
	StmtTypeUpdate        = 3
	StmtTypeDelete        = 4
	StmtTypeDDL           = 5
	StmtTypeGetSegment    = 6
	StmtTypePutSegment    = 7
	StmtTypeExecProcedure = 8
	StmtTypeStartTrans    = 9
	StmtTypeCommit        = 10
	StmtTypeRollback      = 11
	StmtTypeSelectForUpd  = 12
	StmtTypeSetGenerator  = 13
	StmtTypeSavepoint     = 14
)

// Free-statement options.
const (
	DsqlClose     int32 = 1
	DsqlDrop      int32 = 2
	DsqlUnprepare int32 = 4
)

// Fetch scroll types.
const (
	FetchNext     int32 = 0
	FetchPrior    int32 = 1
	FetchFirst    int32 = 2
	FetchLast     int32 = 3
	FetchAbsolute int32 = 4
	FetchRelative int32 = 5
)

// FetchStatusNoMoreRows is the op_fetch_response status at cursor
// exhaustion.
const FetchStatusNoMoreRows int32 = 100

// Status vector argument tags.
const (
	ArgEnd         int32 = 0
	ArgGds         int32 = 1
	ArgString      int32 = 2
	ArgCstring     int32 = 3
	ArgNumber      int32 = 4
	ArgInterpreted int32 = 5
	ArgWarning     int32 = 18
	ArgSQLState    int32 = 19
)

// Server error codes surfaced by the client itself.
const (
	CodeCancelled    int32 = 335544794 // isc_cancelled
	CodeNetReadErr   int32 = 335544726 // isc_net_read_err
	CodeNetWriteErr  int32 = 335544727 // isc_net_write_err
	CodeDsqlSqldaErr int32 = 335544583 // isc_dsql_sqlda_err
)

// SQL data types (masked of their nullable bit).
const (
	SQLTypeText        = 452
	SQLTypeVarying     = 448
	SQLTypeShort       = 500
	SQLTypeLong        = 496
	SQLTypeFloat       = 482
	SQLTypeDouble      = 480
	SQLTypeDFloat      = 530
	SQLTypeTimestamp   = 510
	SQLTypeBlob        = 520
	SQLTypeArray       = 540
	SQLTypeQuad        = 550
	SQLTypeTime        = 560
	SQLTypeDate        = 570
	SQLTypeInt64       = 580
	SQLTypeInt128      = 32752
	SQLTypeTimeTz      = 32756
	SQLTypeTimestampTz = 32754
	SQLTypeDec16       = 32760
	SQLTypeDec34       = 32762
	SQLTypeBoolean     = 32764
	SQLTypeNull        = 32766
)

// BLR type codes used in parameter and row messages.
const (
	BlrText        = 14
	BlrVarying     = 37
	BlrShort       = 7
	BlrLong        = 8
	BlrQuad        = 9
	BlrFloat       = 10
	BlrDouble      = 27
	BlrTimestamp   = 35
	BlrSQLDate     = 12
	BlrSQLTime     = 13
	BlrInt64       = 16
	BlrInt128      = 26
	BlrBool        = 23
	BlrDec16       = 24
	BlrDec34       = 25
	BlrTimeTz      = 28
	BlrTimestampTz = 29

	BlrVersion5 = 5
	BlrBegin    = 2
	BlrMessage  = 4
	BlrEnd      = 255
	BlrEoc      = 76
)

// Batch parameter block version and tags (op_batch_create).
const (
	BatchVersion1 = 1

	BatchTagMultiError      = 1
	BatchTagRecordCounts    = 2
	BatchTagBufferBytesSize = 3
	BatchTagBlobPolicy      = 4
	BatchTagDetailedErrors  = 5
)

// Event parameter block version.
const EpbVersion1 = 1

// Cancel operation kinds (op_cancel payload).
const (
	CancelDisable int32 = 1
	CancelEnable  int32 = 2
	CancelRaise   int32 = 3
	CancelAbort   int32 = 4
)

// ConnectRequestAsync asks op_connect_request for an auxiliary (event)
// channel.
const ConnectRequestAsync int32 = 1
