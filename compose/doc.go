// Package compose 把记忆窗口、证据与用户问题装配成确定性的
// 提示词，并在生成结束后从回答里提取被引用的证据。
//
// 模板是纯文本拼接：相同的 (窗口, 证据, 问题) 输入永远产出
// 相同的提示词。证据按 [E1]..[En] 编号，编号同时是回答中
// 引用标记的提取依据。
package compose
