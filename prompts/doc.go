// Package prompts 提供基于文件的提示词模板存储.
//
// 提示词以 <name>.txt 保存在根目录下, 模型专属版本保存在 <model>/ 子目录中,
// 读取时优先使用模型专属版本. 名称中包含路径分隔符或 ".." 会被拒绝,
// 返回错误码为 INVALID_PROMPT_NAME 的 types.Error, 且满足 errors.Is(err, ErrInvalidName).
package prompts
