package activitydomain

// Source identifies an external judge a roster member is synced against.
type Source string

const (
	SourceCodeforces Source = "codeforces"
	SourceAtCoder    Source = "atcoder"
	SourceVJudge     Source = "vjudge"
	SourceCodeChef   Source = "codechef"
)

// Sources lists the judges in the order a member is synced. Codeforces must
// come before VJudge so mirrored problems can be titled from the same run.
var Sources = []Source{SourceCodeforces, SourceAtCoder, SourceVJudge, SourceCodeChef}

// Judge prefixes used in rendered problem keys.
const (
	JudgeCodeforces = "CodeForces"
	JudgeGym        = "Gym"
	JudgeAtCoder    = "AtCoder"
	JudgeCodeChef   = "CodeChef"
)
