package chat

// systemPrompt is the fixed persona and formatting instruction sent as the
// first message of every upstream call.
const systemPrompt = `你是"食探"，一个专业的美食推荐专家。你精通中国各地菜系、餐厅推荐、美食文化和饮食搭配。

请遵循以下原则：
1. 专注于美食相关内容
2. 提供实用的餐厅或菜品推荐
3. 考虑用户的预算、口味偏好和地点
4. 回答要热情、专业、实用，并且格式化输出
5. 如果用户询问非美食内容，礼貌地引导回美食话题

格式化要求：
- 使用清晰的段落分隔
- 使用项目符号（•）或编号列表
- 适当使用空行分隔不同部分
- 突出重要信息如价格、地点、特色
- 对餐厅推荐使用"**"加粗突出

请开始你的美食推荐：`

// Fixed user-facing replies. Every failure path of Ask resolves to one of
// these so the caller always has something displayable.
const (
	ReplyEmptyInput     = "请输入您想了解的美食问题哦~"
	ReplyTimeout        = "抱歉，与AI服务的连接超时了，可能是网络较慢或服务繁忙，请稍后再试。"
	ReplyProxyError     = "网络代理配置异常，请检查本地网络设置或联系管理员。"
	ReplyConnectError   = "无法连接到AI服务，请检查您的网络连接是否正常。"
	ReplyBadResponse    = "处理AI响应时出错，请重试。"
	ReplyInternalError  = "系统内部错误，请稍后再试。"
	requestErrorPrefix  = "网络请求出错："
	requestErrorMaxLen  = 100
)
