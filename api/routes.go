package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// InfoEndpoint returns the admin, the engine context and the runtime signer
	InfoEndpoint = "/info"

	// FHEKeysEndpoint returns the parameters clients encrypt their inputs with
	FHEKeysEndpoint = "/fhe/keys"
	// FHEInputsEndpoint registers client ciphertexts and returns their handles
	FHEInputsEndpoint = "/fhe/inputs"
	// FHEDecryptEndpoint serves signed user decryption requests
	FHEDecryptEndpoint = "/fhe/decrypt"

	RoundURLParam   = "roundId"
	AddressURLParam = "address"
	RateeURLParam   = "ratee"
	RaterURLParam   = "rater"

	// RoundsEndpoint is the endpoint for creating a new round
	RoundsEndpoint = "/rounds"
	// CurrentRoundEndpoint returns the current round id
	CurrentRoundEndpoint = "/rounds/current"
	// RoundEndpoint returns the round info
	RoundEndpoint = "/rounds/{" + RoundURLParam + "}"
	// EndRoundEndpoint ends an active round
	EndRoundEndpoint = RoundEndpoint + "/end"

	// MembersEndpoint adds members to a round
	MembersEndpoint = RoundEndpoint + "/members"
	// CurrentRoundMembersEndpoint adds members to the current round
	CurrentRoundMembersEndpoint = CurrentRoundEndpoint + "/members"
	// MemberEndpoint checks the membership of an account, with its proof
	MemberEndpoint = MembersEndpoint + "/{" + AddressURLParam + "}"
	// CensusEndpoint returns the roster root and size of a round
	CensusEndpoint = RoundEndpoint + "/census"
	// MemberEventsEndpoint pages the membership log of a round
	MemberEventsEndpoint = RoundEndpoint + "/events"
	// SubscribeEndpoint streams new members of every round over a websocket
	SubscribeEndpoint = "/events/subscribe"

	// WeightsEndpoint sets and reads the round weights
	WeightsEndpoint = RoundEndpoint + "/weights"

	// RatingsEndpoint is the endpoint for submitting a rating
	RatingsEndpoint = RoundEndpoint + "/ratings"
	// RateeRatingsEndpoint returns the rating count and the raters of a ratee
	RateeRatingsEndpoint = RatingsEndpoint + "/{" + RateeURLParam + "}"
	// HasRatedEndpoint tells whether a rater rated a ratee
	HasRatedEndpoint = RateeRatingsEndpoint + "/{" + RaterURLParam + "}"

	// ScoreEndpoint computes (POST) or returns (GET) the aggregate of a ratee
	ScoreEndpoint = RoundEndpoint + "/scores/{" + RateeURLParam + "}"
	// SumsEndpoint returns the dimension sums of a ratee
	SumsEndpoint = ScoreEndpoint + "/sums"
)
