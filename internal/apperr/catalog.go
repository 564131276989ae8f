package apperr

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys for the user-visible strings enumerated in spec §7. The
// keys are plain English sentences so an untranslated catalog lookup still
// renders something sensible.
const (
	MsgSourceMissing        = "source video does not exist, please download"
	MsgTaskUploading        = "task is uploading, please retry later"
	MsgNoBVIDForIntegration = "this task has no BV id, cannot integrate-submit"
	MsgPreUploadParseLimit  = "exceeded pre-upload parse-error limit"
	MsgSegmentInfoMissing   = "segment upload information missing, please reupload"
	MsgTitleTooLong         = "title exceeds 80 characters"
	MsgDescriptionTooLong   = "description exceeds 2000 characters"
	MsgNoOutputSegments     = "no output segments found"
	MsgSegmentUploadFailed  = "some segments failed to upload, please retry the failed parts"
	MsgMergedVideoMissing   = "merged video not found"
	MsgMergedVideoPathEmpty = "merged video path is empty"
	MsgSubmissionPartsEmpty = "submission has no video parts"
	MsgMissingAIDForUpdate  = "could not resolve aid, cannot update"
	MsgMissingTags          = "submission tags cannot be empty"
)

func init() {
	registerChinese()
}

// registerChinese installs the Chinese translations spec §7 calls for
// alongside the English defaults, via golang.org/x/text/message's catalog
// mechanism (the same package the teacher's locale-sensitive username
// normalization relies on through golang.org/x/text/secure/precis).
func registerChinese() {
	zh := message.NewPrinter(language.SimplifiedChinese)
	_ = zh // printer construction validates the registered tag is usable

	message.SetString(language.SimplifiedChinese, MsgSourceMissing, "源视频不存在，请先下载")
	message.SetString(language.SimplifiedChinese, MsgTaskUploading, "任务正在上传，请稍后重试")
	message.SetString(language.SimplifiedChinese, MsgNoBVIDForIntegration, "该任务没有BV号，无法合集投稿")
	message.SetString(language.SimplifiedChinese, MsgPreUploadParseLimit, "预上传解析失败次数已达上限")
	message.SetString(language.SimplifiedChinese, MsgSegmentInfoMissing, "分P上传信息缺失，请重新上传")
	message.SetString(language.SimplifiedChinese, MsgTitleTooLong, "标题不能超过80个字符")
	message.SetString(language.SimplifiedChinese, MsgDescriptionTooLong, "简介不能超过2000个字符")
	message.SetString(language.SimplifiedChinese, MsgNoOutputSegments, "未找到分段文件")
	message.SetString(language.SimplifiedChinese, MsgSegmentUploadFailed, "存在分段上传失败，请重试失败分P")
	message.SetString(language.SimplifiedChinese, MsgMergedVideoMissing, "未找到合并视频")
	message.SetString(language.SimplifiedChinese, MsgMergedVideoPathEmpty, "合并视频路径为空")
	message.SetString(language.SimplifiedChinese, MsgSubmissionPartsEmpty, "投稿文件为空")
	message.SetString(language.SimplifiedChinese, MsgMissingAIDForUpdate, "无法获取AID，无法更新")
	message.SetString(language.SimplifiedChinese, MsgMissingTags, "投稿标签不能为空")
}

// Localize renders one of the Msg* constants in the requested language,
// falling back to the English literal for any untranslated tag.
func Localize(tag language.Tag, key string) string {
	printer := message.NewPrinter(tag)
	return printer.Sprintf(key)
}
