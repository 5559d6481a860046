package exchange

import "github.com/xssnick/tgutils-go/tl"

func init() {
	tl.Register(ReqPQMulti{}, "req_pq_multi#be7e8ef1 nonce:int128 = ResPQ")
	tl.Register(ResPQ{}, "resPQ#05162463 nonce:int128 server_nonce:int128 pq:string server_public_key_fingerprints:Vector<long> = ResPQ")
	tl.Register(PQInnerDataDC{}, "p_q_inner_data_dc#a9f55f95 pq:string p:string q:string nonce:int128 server_nonce:int128 new_nonce:int256 dc:int = P_Q_inner_data")
	tl.Register(ReqDHParams{}, "req_DH_params#d712e4be nonce:int128 server_nonce:int128 p:string q:string public_key_fingerprint:long encrypted_data:string = Server_DH_Params")
	tl.Register(ServerDHParamsOK{}, "server_DH_params_ok#d0e8075c nonce:int128 server_nonce:int128 encrypted_answer:string = Server_DH_Params")
	tl.Register(ServerDHParamsFail{}, "server_DH_params_fail#79cb045d nonce:int128 server_nonce:int128 new_nonce_hash:int128 = Server_DH_Params")
	tl.Register(ServerDHInnerData{}, "server_DH_inner_data#b5890dba nonce:int128 server_nonce:int128 g:int dh_prime:string g_a:string server_time:int = Server_DH_inner_data")
	tl.Register(ClientDHInnerData{}, "client_DH_inner_data#6643b654 nonce:int128 server_nonce:int128 retry_id:long g_b:string = Client_DH_Inner_Data")
	tl.Register(SetClientDHParams{}, "set_client_DH_params#f5045f1f nonce:int128 server_nonce:int128 encrypted_data:string = Set_client_DH_params_answer")
	tl.Register(DHGenOK{}, "dh_gen_ok#3bcbf734 nonce:int128 server_nonce:int128 new_nonce_hash1:int128 = Set_client_DH_params_answer")
	tl.Register(DHGenRetry{}, "dh_gen_retry#46dc1fb9 nonce:int128 server_nonce:int128 new_nonce_hash2:int128 = Set_client_DH_params_answer")
	tl.Register(DHGenFail{}, "dh_gen_fail#a69dae02 nonce:int128 server_nonce:int128 new_nonce_hash3:int128 = Set_client_DH_params_answer")
}

type ReqPQMulti struct {
	Nonce [16]byte `tl:"int128"`
}

type ResPQ struct {
	Nonce        [16]byte `tl:"int128"`
	ServerNonce  [16]byte `tl:"int128"`
	PQ           []byte   `tl:"bytes"`
	Fingerprints []int64  `tl:"vector long"`
}

type PQInnerDataDC struct {
	PQ          []byte   `tl:"bytes"`
	P           []byte   `tl:"bytes"`
	Q           []byte   `tl:"bytes"`
	Nonce       [16]byte `tl:"int128"`
	ServerNonce [16]byte `tl:"int128"`
	NewNonce    [32]byte `tl:"int256"`
	DC          int32    `tl:"int"`
}

type ReqDHParams struct {
	Nonce         [16]byte `tl:"int128"`
	ServerNonce   [16]byte `tl:"int128"`
	P             []byte   `tl:"bytes"`
	Q             []byte   `tl:"bytes"`
	Fingerprint   int64    `tl:"long"`
	EncryptedData []byte   `tl:"bytes"`
}

type ServerDHParamsOK struct {
	Nonce           [16]byte `tl:"int128"`
	ServerNonce     [16]byte `tl:"int128"`
	EncryptedAnswer []byte   `tl:"bytes"`
}

type ServerDHParamsFail struct {
	Nonce        [16]byte `tl:"int128"`
	ServerNonce  [16]byte `tl:"int128"`
	NewNonceHash [16]byte `tl:"int128"`
}

type ServerDHInnerData struct {
	Nonce       [16]byte `tl:"int128"`
	ServerNonce [16]byte `tl:"int128"`
	G           int32    `tl:"int"`
	DHPrime     []byte   `tl:"bytes"`
	GA          []byte   `tl:"bytes"`
	ServerTime  int32    `tl:"int"`
}

type ClientDHInnerData struct {
	Nonce       [16]byte `tl:"int128"`
	ServerNonce [16]byte `tl:"int128"`
	RetryID     int64    `tl:"long"`
	GB          []byte   `tl:"bytes"`
}

type SetClientDHParams struct {
	Nonce         [16]byte `tl:"int128"`
	ServerNonce   [16]byte `tl:"int128"`
	EncryptedData []byte   `tl:"bytes"`
}

type DHGenOK struct {
	Nonce         [16]byte `tl:"int128"`
	ServerNonce   [16]byte `tl:"int128"`
	NewNonceHash1 [16]byte `tl:"int128"`
}

type DHGenRetry struct {
	Nonce         [16]byte `tl:"int128"`
	ServerNonce   [16]byte `tl:"int128"`
	NewNonceHash2 [16]byte `tl:"int128"`
}

type DHGenFail struct {
	Nonce         [16]byte `tl:"int128"`
	ServerNonce   [16]byte `tl:"int128"`
	NewNonceHash3 [16]byte `tl:"int128"`
}
